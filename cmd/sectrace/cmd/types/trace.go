// Package types holds the message payloads the stalker script sends back
// from the target process. Addresses travel as hex strings because frida's
// NativePointer serializes that way.
package types

// Section mirrors one section of the traced module.
type Section struct {
	Name string `json:"name"`
	RVA  uint64 `json:"rva"`
	Size uint64 `json:"size"`
}

// Export mirrors one export of a loaded module.
type Export struct {
	Name string `json:"name"`
	RVA  uint64 `json:"rva"`
}

// Payload is one script message. Kind selects which fields are meaningful.
type Payload struct {
	Kind     string            `json:"kind"`
	Name     string            `json:"name,omitempty"`
	Base     string            `json:"base,omitempty"`
	Size     uint64            `json:"size,omitempty"`
	Sections []Section         `json:"sections,omitempty"`
	Exports  []Export          `json:"exports,omitempty"`
	From     string            `json:"from,omitempty"`
	To       string            `json:"to,omitempty"`
	IP       string            `json:"ip,omitempty"`
	EAX      uint32            `json:"eax,omitempty"`
	EDX      uint32            `json:"edx,omitempty"`
	Leaf     uint32            `json:"leaf,omitempty"`
	DLL      string            `json:"dll,omitempty"`
	Func     string            `json:"func,omitempty"`
	Args     []string          `json:"args,omitempty"`
	Mem      map[string]string `json:"mem,omitempty"`
}
