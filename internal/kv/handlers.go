package kv

import (
	"context"
	"encoding/json"
	"time"

	"distributed-kvstore/internal/idspace"
	"distributed-kvstore/internal/rpc"
)

// RegisterHandlers binds save_key, put_key, find_key, find_job, and
// get_all onto server. Each handler is a thin RPC-facing wrapper around
// the corresponding KV method (or, for get_all, the migration logic a
// joining successor needs).
func (k *KV) RegisterHandlers(server *rpc.Server) {
	server.Register("save_key", func(payload json.RawMessage) (json.RawMessage, bool) {
		var req saveKeyReq
		if err := json.Unmarshal(payload, &req); err != nil {
			return nil, false
		}
		if !k.store.Put(req.Key, req.Value, req.TTL) {
			return nil, false
		}
		return []byte(`true`), true
	})

	server.Register("put_key", func(payload json.RawMessage) (json.RawMessage, bool) {
		var req putKeyReq
		if err := json.Unmarshal(payload, &req); err != nil {
			return nil, false
		}
		ttl := time.Duration(req.TTL) * time.Second
		keys, err := k.PutKey(context.Background(), req.Key, req.Value, ttl)
		if err != nil {
			return nil, false
		}
		out, err := json.Marshal(putKeyResp{Keys: keys})
		if err != nil {
			return nil, false
		}
		return out, true
	})

	server.Register("find_key", func(payload json.RawMessage) (json.RawMessage, bool) {
		var req findKeyReq
		if err := json.Unmarshal(payload, &req); err != nil {
			return nil, false
		}
		v, found := k.FindKey(context.Background(), req.Key, req.TTL, req.IsReplica)
		out, err := json.Marshal(findKeyResp{Value: v, Found: found})
		if err != nil {
			return nil, false
		}
		return out, true
	})

	server.Register("find_job", func(payload json.RawMessage) (json.RawMessage, bool) {
		var req findKeyReq
		if err := json.Unmarshal(payload, &req); err != nil {
			return nil, false
		}
		v, found := k.FindJob(context.Background(), req.Key, req.TTL, req.IsReplica)
		out, err := json.Marshal(findKeyResp{Value: v, Found: found})
		if err != nil {
			return nil, false
		}
		return out, true
	})

	server.Register("get_all", func(payload json.RawMessage) (json.RawMessage, bool) {
		var req getAllReq
		if err := json.Unmarshal(payload, &req); err != nil {
			return nil, false
		}
		out, err := json.Marshal(k.getAll(req.NodeID))
		if err != nil {
			return nil, false
		}
		return out, true
	})
}

type putKeyReq struct {
	Key   string `json:"key"`
	Value []byte `json:"value"`
	TTL   int64  `json:"ttl"`
}

type putKeyResp struct {
	Keys []string `json:"keys"`
}

type getAllReq struct {
	NodeID uint64 `json:"node_id"`
}

type getAllResp struct {
	Keys   []string `json:"keys"`
	Values [][]byte `json:"values"`
}

// getAll hands over every key this node holds that now belongs to the
// joining node at nodeID — the range (our predecessor, nodeID] — and
// removes them from our own store in the same call, per the eager
// key-migration behavior of join. When we have no predecessor yet (a
// singleton ring accepting its first joiner), we own the entire ring, so
// any nodeID is a valid requester and the left bound is our own id.
func (k *KV) getAll(nodeID uint64) getAllResp {
	pred := k.node.Predecessor()
	self := k.node.Self()
	space := k.node.Space()

	predNumeric := self.Numeric
	if pred != nil {
		predNumeric = pred.Numeric
		if !idspace.Between(nodeID, predNumeric, self.Numeric, false, false, space.N) {
			return getAllResp{}
		}
	}

	keys := make([]string, 0)
	values := make([][]byte, 0)
	for _, e := range k.store.IterMine() {
		numeric, err := numericOfHexKey(e.Key, space.N)
		if err != nil {
			continue
		}
		if idspace.Between(numeric, predNumeric, nodeID, false, true, space.N) {
			keys = append(keys, e.Key)
			values = append(values, e.Value)
		}
	}
	k.store.DeleteMany(keys)
	return getAllResp{Keys: keys, Values: values}
}
