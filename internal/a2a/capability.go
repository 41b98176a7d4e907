package a2a

// Capability describes one remotely invocable unit of work hosted by a
// provider. Names are unique per endpoint.
type Capability struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	InputModes  []string `json:"input_modes,omitempty"`
	OutputModes []string `json:"output_modes,omitempty"`
}

// ListCapabilitiesRequest is the (empty) discovery request.
type ListCapabilitiesRequest struct{}

// ListCapabilitiesResponse lists capabilities in registration order.
type ListCapabilitiesResponse struct {
	Capabilities []Capability `json:"capabilities"`
}

// InvokeRequest asks the provider to run one capability on a message.
type InvokeRequest struct {
	Capability string   `json:"capability"`
	Message    *Message `json:"message"`
}

// InvokeResponse carries the provider's reply.
type InvokeResponse struct {
	Message *Message `json:"message"`
}
