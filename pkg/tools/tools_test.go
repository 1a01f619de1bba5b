package tools

import (
	"context"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func builtinRegistry(t *testing.T) *Registry {
	t.Helper()
	reg := NewRegistry()
	require.NoError(t, RegisterBuiltins(reg))
	return reg
}

func TestRegistryLookup(t *testing.T) {
	reg := builtinRegistry(t)

	tool, err := reg.Lookup("create_support_ticket")
	require.NoError(t, err)
	assert.Equal(t, "create_support_ticket", tool.Definition().Name)

	_, err = reg.Lookup("teleport")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrToolNotFound)
}

func TestRegistryByNames(t *testing.T) {
	reg := builtinRegistry(t)

	subset, err := reg.ByNames([]string{"check_known_outages", "get_current_time"})
	require.NoError(t, err)
	require.Len(t, subset, 2)
	assert.Equal(t, "check_known_outages", subset[0].Definition().Name)

	_, err = reg.ByNames([]string{"check_known_outages", "missing"})
	assert.ErrorIs(t, err, ErrToolNotFound)
}

func TestRegistryDefinitionsSorted(t *testing.T) {
	defs := builtinRegistry(t).Definitions()
	require.NotEmpty(t, defs)
	for i := 1; i < len(defs); i++ {
		assert.LessOrEqual(t, defs[i-1].Name, defs[i].Name)
	}
}

func TestFuncToolSchema(t *testing.T) {
	reg := builtinRegistry(t)
	tool, err := reg.Lookup("check_known_outages")
	require.NoError(t, err)

	params := tool.Definition().Parameters
	assert.Equal(t, "object", params["type"])

	properties, ok := params["properties"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, properties, "software_name")

	required, ok := params["required"].([]any)
	require.True(t, ok)
	assert.Contains(t, required, "software_name")
}

func TestFuncToolRejectsBadArguments(t *testing.T) {
	tool := MustFunc("adder", "adds two numbers",
		func(ctx context.Context, args struct {
			A int `json:"a" jsonschema:"required"`
			B int `json:"b" jsonschema:"required"`
		}) (any, error) {
			return args.A + args.B, nil
		})

	got, err := tool.Call(context.Background(), map[string]any{"a": float64(2), "b": float64(3)})
	require.NoError(t, err)
	assert.Equal(t, 5, got)

	_, err = tool.Call(context.Background(), map[string]any{"a": map[string]any{}})
	assert.Error(t, err)
}

func TestCheckKnownOutages(t *testing.T) {
	ctx := context.Background()

	got, err := checkKnownOutages(ctx, outageArgs{SoftwareName: "VPN Service"})
	require.NoError(t, err)
	assert.Equal(t, "outage", got.(map[string]any)["status"])

	got, err = checkKnownOutages(ctx, outageArgs{SoftwareName: "Spreadsheet"})
	require.NoError(t, err)
	assert.Equal(t, "operational", got.(map[string]any)["status"])
}

func TestTriageITIssue(t *testing.T) {
	tests := []struct {
		description string
		want        string
	}{
		{"My laptop screen is cracked", "Hardware"},
		{"I'm locked out of my account", "Access"},
		{"The VPN is not loading", "Software"},
		{"Something mysterious", "Unknown"},
	}
	for _, tt := range tests {
		got, err := triageITIssue(context.Background(), triageArgs{ProblemDescription: tt.description})
		require.NoError(t, err)
		assert.Equal(t, tt.want, got.(map[string]any)["category"], tt.description)
	}
}

func TestCreateSupportTicketIDFormat(t *testing.T) {
	got, err := createSupportTicket(context.Background(), ticketArgs{Username: "j.doe", IssueSummary: "broken mouse"})
	require.NoError(t, err)
	ticket := got.(map[string]any)
	assert.Regexp(t, regexp.MustCompile(`^IT-\d{4}$`), ticket["ticket_id"])
	assert.Equal(t, "broken mouse", ticket["summary"])
}
