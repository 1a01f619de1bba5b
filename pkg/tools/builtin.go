package tools

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Deterministic fixtures backing the demo IT-support tools. They make the
// seeded workflows runnable without any external ticketing system.
var (
	assetDB = map[string]map[string]string{
		"j.doe":   {"serial_number": "HW-1001", "name": "Laptop"},
		"a.smith": {"serial_number": "HW-2088", "name": "Desktop"},
	}
	warrantyDB = map[string]map[string]string{
		"HW-1001": {"status": "Active", "expires": "2026-05-10"},
		"HW-2088": {"status": "Expired", "expires": "2024-01-20"},
	}
	softwareOutages = []string{"VPN Service", "Email Server"}
)

type triageArgs struct {
	ProblemDescription string `json:"problem_description" jsonschema:"required,description=The user's description of their IT problem"`
}

type outageArgs struct {
	SoftwareName string `json:"software_name" jsonschema:"required,description=The name of the software to check (e.g. 'VPN Service')"`
}

type warrantyArgs struct {
	Username string `json:"username" jsonschema:"required,description=The username of the employee (e.g. 'j.doe')"`
}

type ticketArgs struct {
	Username     string `json:"username" jsonschema:"required,description=The username of the person reporting the issue"`
	IssueSummary string `json:"issue_summary" jsonschema:"required,description=A brief summary of the problem"`
	Priority     string `json:"priority,omitempty" jsonschema:"description=The priority of the ticket ('High', 'Medium', 'Low'),default=Medium"`
}

type timeArgs struct{}

// RegisterBuiltins adds the demo IT-support tool suite to the registry.
func RegisterBuiltins(r *Registry) error {
	builtins := []Tool{
		MustFunc("triage_it_issue",
			"Analyzes a user's problem description and categorizes it into 'Hardware', 'Software', or 'Access'.",
			triageITIssue),
		MustFunc("check_known_outages",
			"Checks if a specific software is on the official list of current system outages.",
			checkKnownOutages),
		MustFunc("check_device_warranty",
			"Looks up a user's assigned device and checks its warranty status.",
			checkDeviceWarranty),
		MustFunc("create_support_ticket",
			"Creates a new support ticket in the system.",
			createSupportTicket),
		MustFunc("get_current_time",
			"Returns the current date and time.",
			getCurrentTime),
	}
	for _, tool := range builtins {
		if err := r.Add(tool); err != nil {
			return err
		}
	}
	return nil
}

func triageITIssue(ctx context.Context, args triageArgs) (any, error) {
	desc := strings.ToLower(args.ProblemDescription)
	contains := func(keywords ...string) bool {
		for _, kw := range keywords {
			if strings.Contains(desc, kw) {
				return true
			}
		}
		return false
	}
	switch {
	case contains("slow", "broken", "won't turn on", "cracked", "laptop", "mouse"):
		return map[string]any{"category": "Hardware"}, nil
	case contains("can't log in", "password", "locked out", "access"):
		return map[string]any{"category": "Access"}, nil
	case contains("software", "application", "vpn", "email", "not loading"):
		return map[string]any{"category": "Software"}, nil
	}
	return map[string]any{"category": "Unknown"}, nil
}

func checkKnownOutages(ctx context.Context, args outageArgs) (any, error) {
	for _, name := range softwareOutages {
		if name == args.SoftwareName {
			return map[string]any{
				"status":  "outage",
				"details": fmt.Sprintf("We are experiencing a system-wide outage for %s.", name),
			}, nil
		}
	}
	return map[string]any{"status": "operational"}, nil
}

func checkDeviceWarranty(ctx context.Context, args warrantyArgs) (any, error) {
	asset, ok := assetDB[args.Username]
	if !ok {
		return map[string]any{"status": "error", "reason": "User not found in asset database."}, nil
	}
	serial := asset["serial_number"]
	warranty, ok := warrantyDB[serial]
	if !ok {
		warranty = map[string]string{"status": "Not Found"}
	}
	return map[string]any{"serial_number": serial, "warranty": warranty}, nil
}

func createSupportTicket(ctx context.Context, args ticketArgs) (any, error) {
	ticketID := fmt.Sprintf("IT-%04d", time.Now().Unix()%10000)
	return map[string]any{
		"status":    "success",
		"ticket_id": ticketID,
		"summary":   args.IssueSummary,
	}, nil
}

func getCurrentTime(ctx context.Context, args timeArgs) (any, error) {
	return time.Now().Format(time.RFC3339), nil
}
