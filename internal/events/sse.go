package events

import (
	"encoding/json"
	"fmt"
	"io"
)

// WriteSSE writes n in Server-Sent Events framing.
func WriteSSE(w io.Writer, n Notification) error {
	data := []byte("{}")
	if n.Data != nil {
		var err error
		data, err = json.Marshal(n.Data)
		if err != nil {
			return fmt.Errorf("marshal %s notification: %w", n.Type, err)
		}
	}
	_, err := fmt.Fprintf(w, "id: %d\nevent: %s\ndata: %s\n\n", n.ID, n.Type, data)
	return err
}
