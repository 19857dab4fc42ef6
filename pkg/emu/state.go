package emu

import (
	"encoding/base64"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type stack struct {
	Addr       uint64
	DataBase64 string
}

// State is an initial CPU/stack state loaded from a YAML file, for samples
// that expect registers or stack contents their loader would have set up.
type State struct {
	Stack     stack
	Registers map[string]uint64
}

// ParseState loads a state file.
func ParseState(name string) (*State, error) {
	var state State

	data, err := os.ReadFile(name)
	if err != nil {
		return nil, fmt.Errorf("error reading state file: %v", err)
	}

	if err := yaml.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("error unmarshalling state file: %v", err)
	}

	return &state, nil
}

// StackData decodes the embedded stack bytes.
func (state *State) StackData() ([]byte, error) {
	data, err := base64.StdEncoding.DecodeString(state.Stack.DataBase64)
	if err != nil {
		return nil, fmt.Errorf("error decoding stack data: %v", err)
	}
	return data, nil
}

// DumpYaml prints the state back out, for generating template files.
func (state *State) DumpYaml() {
	data, err := yaml.Marshal(state)
	if err != nil {
		panic(err)
	}
	fmt.Printf("%s\n", data)
}
