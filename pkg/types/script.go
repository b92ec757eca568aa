package types

import (
	"encoding/hex"
	"encoding/json"
)

// ScriptType says how an output is locked. The values are part of the
// signing encoding.
type ScriptType uint8

const (
	// ScriptTypeP2PKH pays a 20-byte address.
	ScriptTypeP2PKH ScriptType = 0x01
	// ScriptTypeP2SH pays a script hash. It can never hold stake.
	ScriptTypeP2SH ScriptType = 0x02
	// ScriptTypeBurn is unspendable.
	ScriptTypeBurn ScriptType = 0x11
	// ScriptTypeStake locks stake to a 33-byte compressed public key.
	ScriptTypeStake ScriptType = 0x40
)

var scriptTypeNames = map[ScriptType]string{
	ScriptTypeP2PKH: "P2PKH",
	ScriptTypeP2SH:  "P2SH",
	ScriptTypeBurn:  "Burn",
	ScriptTypeStake: "Stake",
}

func (st ScriptType) String() string {
	if name, ok := scriptTypeNames[st]; ok {
		return name
	}
	return "Unknown"
}

// Script is the locking condition of an output.
type Script struct {
	Type ScriptType
	Data []byte
}

// scriptWire is the JSON form of Script, with Data as hex.
type scriptWire struct {
	Type ScriptType `json:"type"`
	Data string     `json:"data"`
}

func (s Script) MarshalJSON() ([]byte, error) {
	return json.Marshal(scriptWire{s.Type, hex.EncodeToString(s.Data)})
}

// UnmarshalJSON leaves Data nil for an empty data string.
func (s *Script) UnmarshalJSON(b []byte) error {
	var w scriptWire
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	var data []byte
	if w.Data != "" {
		var err error
		if data, err = hex.DecodeString(w.Data); err != nil {
			return err
		}
	}
	*s = Script{Type: w.Type, Data: data}
	return nil
}
