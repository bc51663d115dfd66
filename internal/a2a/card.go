package a2a

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	sdka2a "github.com/a2aproject/a2a-go/a2a"
)

// WellKnownPath is where every specialist serves its agent card.
const WellKnownPath = "/.well-known/agent.json"

// Skill declares one capability a specialist advertises, together with the
// argument names its payload must and may carry. The card only publishes
// id/name/description/tags; argument validation happens specialist-side.
type Skill struct {
	ID          string
	Name        string
	Description string
	Tags        []string
	Required    []string
	Optional    []string
}

// CardSpec is what a specialist needs to describe itself.
type CardSpec struct {
	Name        string
	Description string
	URL         string
	Version     string
	Org         string
	Skills      []Skill
}

// BuildCard assembles the agent card published at the well-known path and
// used by clients to open a JSON-RPC connection.
func BuildCard(spec CardSpec) *sdka2a.AgentCard {
	rpcURL := strings.TrimRight(spec.URL, "/") + "/a2a"

	skills := make([]sdka2a.AgentSkill, 0, len(spec.Skills))
	for _, s := range spec.Skills {
		skills = append(skills, sdka2a.AgentSkill{
			ID:          s.ID,
			Name:        s.Name,
			Description: s.Description,
			Tags:        s.Tags,
			InputModes:  []string{"application/json"},
			OutputModes: []string{"application/json"},
		})
	}

	return &sdka2a.AgentCard{
		Name:            spec.Name,
		Description:     spec.Description,
		URL:             rpcURL,
		Version:         spec.Version,
		ProtocolVersion: "1.0",
		Provider: &sdka2a.AgentProvider{
			Org: spec.Org,
			URL: spec.URL,
		},
		PreferredTransport: sdka2a.TransportProtocolJSONRPC,
		AdditionalInterfaces: []sdka2a.AgentInterface{
			{URL: rpcURL, Transport: sdka2a.TransportProtocolJSONRPC},
		},
		Capabilities: sdka2a.AgentCapabilities{
			Streaming:              false,
			PushNotifications:      false,
			StateTransitionHistory: true,
		},
		Skills:             skills,
		DefaultInputModes:  []string{"application/json"},
		DefaultOutputModes: []string{"application/json"},
	}
}

// FetchCard retrieves an agent card from a base URL, appending the well-known
// path when the URL does not already point at one.
func FetchCard(ctx context.Context, url string) (*sdka2a.AgentCard, error) {
	if !strings.HasSuffix(url, ".json") && !strings.Contains(url, "/.well-known/") {
		url = strings.TrimRight(url, "/") + WellKnownPath
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch agent card: status %d", resp.StatusCode)
	}

	var card sdka2a.AgentCard
	if err := json.NewDecoder(resp.Body).Decode(&card); err != nil {
		return nil, fmt.Errorf("decode agent card: %w", err)
	}
	return &card, nil
}
