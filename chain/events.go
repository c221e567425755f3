package chain

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
)

const checkpointSealedEventKey = "babylon.checkpointing.v1.EventCheckpointSealed.checkpoint"

// BlockEvent carries a block delivered over the event stream.
type BlockEvent struct {
	Block *Block
}

// CheckpointEvent signals that the checkpoint for an epoch was sealed.
type CheckpointEvent struct {
	Epoch uint64
}

type wsFrame struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  json.RawMessage `json:"result"`
}

type eventResult struct {
	Query string `json:"query"`
	Data  struct {
		Type  string          `json:"type"`
		Value json.RawMessage `json:"value"`
	} `json:"data"`
	Events map[string][]string `json:"events"`
}

type blockEventValue struct {
	Block *Block `json:"block"`
}

// Router demultiplexes raw event-stream frames into bounded channels of
// block and checkpoint events. Routing is stateless: each decision
// depends only on the current frame. On a full channel the oldest
// pending event is dropped with a warning; gap catch-up recovers the
// missed heights later.
type Router struct {
	network     string
	blocks      chan *BlockEvent
	checkpoints chan *CheckpointEvent
}

// NewRouter constructs a router with the given channel capacity.
func NewRouter(network string, buffer int) *Router {
	return &Router{
		network:     network,
		blocks:      make(chan *BlockEvent, buffer),
		checkpoints: make(chan *CheckpointEvent, buffer),
	}
}

// Blocks is the channel of routed block events.
func (r *Router) Blocks() <-chan *BlockEvent {
	return r.blocks
}

// Checkpoints is the channel of routed checkpoint-sealed events.
func (r *Router) Checkpoints() <-chan *CheckpointEvent {
	return r.checkpoints
}

// Route inspects one raw frame and dispatches it. Subscription acks
// and unknown shapes are discarded with debug logging only.
func (r *Router) Route(raw []byte) {
	var frame wsFrame
	if err := json.Unmarshal(raw, &frame); err != nil {
		log.WithError(err).WithField("payload", truncate(raw, 128)).Debug("Dropping unparseable frame")
		return
	}
	if len(frame.Result) == 0 || string(frame.Result) == "{}" || string(frame.Result) == "true" {
		log.WithField("id", string(frame.ID)).Debug("Discarding subscription ack")
		return
	}
	var result eventResult
	if err := json.Unmarshal(frame.Result, &result); err != nil {
		log.WithError(err).WithField("payload", truncate(frame.Result, 128)).Debug("Dropping unparseable event result")
		return
	}

	if epoch, ok := checkpointEpoch(result.Events); ok {
		r.dispatchCheckpoint(&CheckpointEvent{Epoch: epoch})
		return
	}

	if len(result.Data.Value) > 0 {
		var value blockEventValue
		if err := json.Unmarshal(result.Data.Value, &value); err == nil && value.Block != nil && value.Block.Height() > 0 {
			r.dispatchBlock(&BlockEvent{Block: value.Block})
			return
		}
	}
	log.WithField("query", result.Query).Debug("Discarding event of unknown shape")
}

func (r *Router) dispatchBlock(ev *BlockEvent) {
	for {
		select {
		case r.blocks <- ev:
			return
		default:
		}
		select {
		case dropped := <-r.blocks:
			eventsDropped.Inc()
			log.WithFields(logrus.Fields{
				"network": r.network,
				"height":  dropped.Block.Height(),
			}).Warn("Block event buffer full, dropping oldest")
		default:
		}
	}
}

func (r *Router) dispatchCheckpoint(ev *CheckpointEvent) {
	for {
		select {
		case r.checkpoints <- ev:
			return
		default:
		}
		select {
		case dropped := <-r.checkpoints:
			eventsDropped.Inc()
			log.WithFields(logrus.Fields{
				"network": r.network,
				"epoch":   dropped.Epoch,
			}).Warn("Checkpoint event buffer full, dropping oldest")
		default:
		}
	}
}

// checkpointEpoch scans the frame's event attributes for the
// checkpoint-sealed predicate and extracts the epoch number from an
// "epoch_num=<digits>" fragment.
func checkpointEpoch(events map[string][]string) (uint64, bool) {
	for key, values := range events {
		if !strings.Contains(key, checkpointSealedEventKey) {
			continue
		}
		for _, v := range values {
			idx := strings.Index(v, "epoch_num")
			if idx < 0 {
				continue
			}
			rest := v[idx+len("epoch_num"):]
			rest = strings.TrimLeft(rest, ":= \"")
			end := 0
			for end < len(rest) && rest[end] >= '0' && rest[end] <= '9' {
				end++
			}
			if end == 0 {
				continue
			}
			epoch, err := strconv.ParseUint(rest[:end], 10, 64)
			if err != nil {
				continue
			}
			return epoch, true
		}
	}
	return 0, false
}
