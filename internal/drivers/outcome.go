package drivers

import "fmt"

// Kind classifies an Outcome.
type Kind int

const (
	KindSuccess Kind = iota
	KindSkipped
	KindError
)

func (k Kind) String() string {
	switch k {
	case KindSuccess:
		return "success"
	case KindSkipped:
		return "skipped"
	case KindError:
		return "error"
	}
	return "unknown"
}

// MarshalText encodes the kind by name.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText decodes a kind written by MarshalText.
func (k *Kind) UnmarshalText(b []byte) error {
	switch string(b) {
	case "success":
		*k = KindSuccess
	case "skipped":
		*k = KindSkipped
	case "error":
		*k = KindError
	default:
		return fmt.Errorf("drivers: unknown outcome kind %q", b)
	}
	return nil
}

// Outcome is the result of wiring one device.
type Outcome struct {
	Kind Kind `json:"kind"`

	// Name is the accessory display name on success.
	Name string `json:"name,omitempty"`

	// Reason explains a Skipped or Error outcome.
	Reason string `json:"reason,omitempty"`
}

// Success reports a wired accessory.
func Success(name string) Outcome {
	return Outcome{Kind: KindSuccess, Name: name}
}

// Skipped reports a device that is intentionally not exposed.
func Skipped(format string, args ...any) Outcome {
	return Outcome{Kind: KindSkipped, Reason: fmt.Sprintf(format, args...)}
}

// Errorf reports a device whose wiring failed.
func Errorf(format string, args ...any) Outcome {
	return Outcome{Kind: KindError, Reason: fmt.Sprintf(format, args...)}
}

func (o Outcome) String() string {
	if o.Kind == KindSuccess {
		return fmt.Sprintf("success(%s)", o.Name)
	}
	return fmt.Sprintf("%s(%s)", o.Kind, o.Reason)
}
