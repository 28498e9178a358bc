package loreline

import (
	"encoding/json"
	"sort"
)

// currentSaveVersion guards forward-compatibility: a payload written by
// a newer/older save schema fails fast with ErrIncompatibleSaveData
// rather than partially restoring (spec §4.6).
const currentSaveVersion = 1

type savedField struct {
	Name  string     `json:"name"`
	Value savedValue `json:"value"`
}

type savedIntEntry struct {
	Key   int64      `json:"key"`
	Value savedValue `json:"value"`
}

// savedValue is Value's JSON-serializable shadow: a closed tagged union
// mirrors the in-memory one exactly (spec §4.4/§4.6), with map kinds
// flattened to ordered slices so the encoded bytes are deterministic.
type savedValue struct {
	Kind  ValueKind       `json:"kind"`
	Int   int64           `json:"int,omitempty"`
	Float float64         `json:"float,omitempty"`
	Bool  bool            `json:"bool,omitempty"`
	Str   string          `json:"str,omitempty"`
	Array []savedValue    `json:"array,omitempty"`
	Map   []savedField    `json:"map,omitempty"`
	IMap  []savedIntEntry `json:"imap,omitempty"`
	Obj   []savedField    `json:"obj,omitempty"`
}

func toSavedValue(v Value) savedValue {
	sv := savedValue{Kind: v.Kind}
	switch v.Kind {
	case KindInt:
		sv.Int = v.IntVal
	case KindFloat:
		sv.Float = v.FloatVal
	case KindBool:
		sv.Bool = v.BoolVal
	case KindString:
		sv.Str = v.StringVal
	case KindArray:
		sv.Array = make([]savedValue, len(v.ArrayVal))
		for i, e := range v.ArrayVal {
			sv.Array[i] = toSavedValue(e)
		}
	case KindStringMap:
		keys := make([]string, 0, len(v.StrMapVal))
		for k := range v.StrMapVal {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			sv.Map = append(sv.Map, savedField{Name: k, Value: toSavedValue(v.StrMapVal[k])})
		}
	case KindIntMap:
		keys := make([]int64, 0, len(v.IntMapVal))
		for k := range v.IntMapVal {
			keys = append(keys, k)
		}
		sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
		for _, k := range keys {
			sv.IMap = append(sv.IMap, savedIntEntry{Key: k, Value: toSavedValue(v.IntMapVal[k])})
		}
	case KindFields:
		sv.Obj = dumpFields(v.Fields)
	}
	return sv
}

func fromSavedValue(sv savedValue) Value {
	switch sv.Kind {
	case KindInt:
		return IntValue(sv.Int)
	case KindFloat:
		return FloatValue(sv.Float)
	case KindBool:
		return BoolValue(sv.Bool)
	case KindString:
		return StringValue(sv.Str)
	case KindArray:
		arr := make([]Value, len(sv.Array))
		for i, e := range sv.Array {
			arr[i] = fromSavedValue(e)
		}
		return ArrayValue(arr)
	case KindStringMap:
		m := make(map[string]Value, len(sv.Map))
		for _, f := range sv.Map {
			m[f.Name] = fromSavedValue(f.Value)
		}
		return StringMapValue(m)
	case KindIntMap:
		m := make(map[int64]Value, len(sv.IMap))
		for _, e := range sv.IMap {
			m[e.Key] = fromSavedValue(e.Value)
		}
		return IntMapValue(m)
	case KindFields:
		f := newMapFields()
		for _, sf := range sv.Obj {
			f.Set(sf.Name, fromSavedValue(sf.Value))
		}
		return FieldsValue(f)
	}
	return Null
}

// dumpFields flattens a FieldsObject in declaration order. Restoring
// always rebuilds the default mapFields backing, even for a frame a
// host originally constructed with Options.CustomCreateFields: a custom
// backing's internal representation isn't guaranteed serializable, so
// save/restore only preserves the Get/Set-visible field values.
func dumpFields(f FieldsObject) []savedField {
	if f == nil {
		return nil
	}
	names := f.FieldNames()
	out := make([]savedField, 0, len(names))
	for _, n := range names {
		v, _ := f.Get(n)
		out = append(out, savedField{Name: n, Value: toSavedValue(v)})
	}
	return out
}

func loadFields(ip *Interpreter, list []savedField) FieldsObject {
	f := newMapFields()
	f.OnCreate(ip)
	for _, sf := range list {
		f.Set(sf.Name, fromSavedValue(sf.Value))
	}
	return f
}

func dumpScopeOwn(sc *scope) []savedField {
	if sc == nil {
		return nil
	}
	out := make([]savedField, 0, len(sc.vars))
	for k, v := range sc.vars {
		out = append(out, savedField{Name: k, Value: toSavedValue(v)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// savedFrame is one execution-stack entry. NodeID names the statement
// about to run next; Exhausted marks a frame whose block has already
// run to completion (about to pop). Locating the frame's Block/index
// from NodeID at restore time reuses Interpreter.locations rather than
// serializing a block identity directly.
type savedFrame struct {
	Beat      string       `json:"beat"`
	NodeID    uint64       `json:"nodeId,omitempty"`
	Exhausted bool         `json:"exhausted,omitempty"`
	Locals    []savedField `json:"locals,omitempty"`
}

type savePayload struct {
	Version        int                     `json:"version"`
	SessionID      string                  `json:"sessionId"`
	RNG            []byte                  `json:"rng"`
	Global         []savedField            `json:"global"`
	Characters     map[string][]savedField `json:"characters"`
	BeatPersistent map[string][]savedField `json:"beatPersistent"`
	CurrentBeat    string                  `json:"currentBeat"`
	Stack          []savedFrame            `json:"stack"`
}

// Save serializes the interpreter to a self-describing JSON string
// (spec §4.6): version tag, RNG state, global/character/persistent-beat
// frames, and the execution stack's cursor plus each frame's own local
// bindings. Save points are always at a statement boundary — the stack
// recorded here is exactly what run() would read on its next iteration,
// whether or not the interpreter happens to be suspended awaiting a
// dialogue continuation or choice selector at the moment Save is called
// (that continuation itself doesn't survive serialization; the host
// resumes a restored interpreter via Resume, not a stale closure).
func (ip *Interpreter) Save() (string, error) {
	rngBytes, err := ip.rng.marshal()
	if err != nil {
		return "", newError(ErrIncompatibleSaveData, "interpreter:save", ip.filename, Position{}, "failed to marshal rng state: %v", err)
	}
	payload := savePayload{
		Version:        currentSaveVersion,
		SessionID:      ip.sessionID,
		RNG:            rngBytes,
		Global:         dumpFields(ip.global),
		Characters:     make(map[string][]savedField, len(ip.characters)),
		BeatPersistent: make(map[string][]savedField, len(ip.beatPersistent)),
		CurrentBeat:    ip.currentBeat,
	}
	for name, f := range ip.characters {
		payload.Characters[name] = dumpFields(f)
	}
	for name, f := range ip.beatPersistent {
		payload.BeatPersistent[name] = dumpFields(f)
	}
	for _, fr := range ip.stack {
		sf := savedFrame{Beat: fr.beat, Locals: dumpScopeOwn(fr.scope)}
		if fr.block != nil && fr.index < len(fr.block.Statements) {
			sf.NodeID = uint64(fr.block.Statements[fr.index].ID())
		} else {
			sf.Exhausted = true
		}
		payload.Stack = append(payload.Stack, sf)
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return "", newError(ErrIncompatibleSaveData, "interpreter:save", ip.filename, Position{}, "failed to marshal save payload: %v", err)
	}
	return string(data), nil
}

// Restore populates the interpreter from a payload produced by Save.
// The stack is rebuilt frame by frame, chaining each frame's scope to
// the previous one's, exactly as the live run loop chains them on push.
func (ip *Interpreter) Restore(saveData string) error {
	var payload savePayload
	if err := json.Unmarshal([]byte(saveData), &payload); err != nil {
		return newError(ErrIncompatibleSaveData, "interpreter:restore", ip.filename, Position{}, "malformed save data: %v", err)
	}
	if payload.Version != currentSaveVersion {
		return newError(ErrIncompatibleSaveData, "interpreter:restore", ip.filename, Position{}, "unsupported save version %d", payload.Version)
	}
	if err := ip.rng.restore(payload.RNG); err != nil {
		return newError(ErrIncompatibleSaveData, "interpreter:restore", ip.filename, Position{}, "malformed rng state: %v", err)
	}
	ip.sessionID = payload.SessionID
	ip.global = loadFields(ip, payload.Global)
	ip.characters = make(map[string]FieldsObject, len(payload.Characters))
	for name, list := range payload.Characters {
		ip.characters[name] = loadFields(ip, list)
	}
	ip.beatPersistent = make(map[string]FieldsObject, len(payload.BeatPersistent))
	for name, list := range payload.BeatPersistent {
		ip.beatPersistent[name] = loadFields(ip, list)
	}
	ip.beatTransient = make(map[string]FieldsObject)
	ip.currentBeat = payload.CurrentBeat

	stack := make([]stackFrame, 0, len(payload.Stack))
	var parent *scope
	for _, sf := range payload.Stack {
		var blk *Block
		idx := 0
		if !sf.Exhausted {
			loc, ok := ip.locations[NodeId(sf.NodeID)]
			if !ok {
				return newError(ErrIncompatibleSaveData, "interpreter:restore", ip.filename, Position{}, "save references unknown node %d", sf.NodeID)
			}
			blk, idx = loc.block, loc.index
		}
		sc := newScope(parent)
		for _, lf := range sf.Locals {
			sc.define(lf.Name, fromSavedValue(lf.Value))
		}
		stack = append(stack, stackFrame{beat: sf.Beat, block: blk, index: idx, scope: sc})
		parent = sc
	}
	ip.stack = stack
	ip.status = StatusReady
	ip.epoch++
	return nil
}
