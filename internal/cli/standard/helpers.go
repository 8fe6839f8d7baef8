package standard

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/ccheshirecat/msgbus/internal/cli/client"
)

func envOrDefault(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func clientFromCmd(cmd *cobra.Command) (*client.Client, error) {
	base, err := cmd.Root().PersistentFlags().GetString("api")
	if err != nil {
		base = envOrDefault("MSGBUS_API_BASE", client.DefaultBaseURL)
	}
	key, err := cmd.Root().PersistentFlags().GetString("api-key")
	if err != nil {
		key = os.Getenv("MSGBUS_API_KEY")
	}
	return client.New(base, key)
}

func encodeAsJSON(out io.Writer, payload any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(payload)
}

func parseTopicID(raw string) (uint32, error) {
	if raw == "*" || raw == "any" {
		return ^uint32(0), nil
	}
	id, err := strconv.ParseUint(raw, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid topic id %q", raw)
	}
	return uint32(id), nil
}

// payloadFromArg keeps valid JSON as-is and quotes anything else as a string.
func payloadFromArg(raw string) json.RawMessage {
	if raw == "" {
		return nil
	}
	if json.Valid([]byte(raw)) {
		return json.RawMessage(raw)
	}
	quoted, _ := json.Marshal(raw)
	return quoted
}
