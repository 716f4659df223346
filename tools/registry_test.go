package tools

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"

	"github.com/aschepis/backscratcher/claw/llm"
)

func TestExecute_UnknownTool(t *testing.T) {
	reg := NewRegistry(zerolog.Nop())
	got := reg.Execute(context.Background(), "launch_rockets", map[string]any{})
	if want := `Error: Unknown tool "launch_rockets"`; got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestExecute_ExecutorError(t *testing.T) {
	reg := NewRegistry(zerolog.Nop())
	reg.RegisterSpec(llm.ToolSpec{Name: "flaky"}, func(context.Context, map[string]any) (string, error) {
		return "", errors.New("disk on fire")
	})
	got := reg.Execute(context.Background(), "flaky", nil)
	if want := `Error executing tool "flaky": disk on fire`; got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestExecute_ExecutorPanic(t *testing.T) {
	reg := NewRegistry(zerolog.Nop())
	reg.RegisterSpec(llm.ToolSpec{Name: "boom"}, func(context.Context, map[string]any) (string, error) {
		panic("bad state")
	})
	got := reg.Execute(context.Background(), "boom", nil)
	if want := `Error executing tool "boom": bad state`; got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestExecute_NilArgsBecomeEmptyMap(t *testing.T) {
	reg := NewRegistry(zerolog.Nop())
	reg.RegisterSpec(llm.ToolSpec{Name: "echo"}, func(_ context.Context, args map[string]any) (string, error) {
		if args == nil {
			return "", errors.New("nil args")
		}
		return "ok", nil
	})
	if got := reg.Execute(context.Background(), "echo", nil); got != "ok" {
		t.Errorf("got %q", got)
	}
}

func TestSpecs(t *testing.T) {
	reg := NewRegistry(zerolog.Nop())
	reg.RegisterSystemTools(nil)
	reg.RegisterMemoryTools(&fakeRecaller{})

	specs := reg.Specs()
	if len(specs) != 2 {
		t.Fatalf("got %d specs, want 2", len(specs))
	}
	if specs[0].Name != "get_current_time" || specs[1].Name != "search_memory" {
		t.Errorf("specs not sorted by name: %s, %s", specs[0].Name, specs[1].Name)
	}

	search := specs[1]
	if search.Description == "" {
		t.Error("search_memory has no description")
	}
	if search.Schema.Type != "object" {
		t.Errorf("schema type = %q", search.Schema.Type)
	}
	if _, ok := search.Schema.Properties["query"]; !ok {
		t.Error("search_memory schema missing query property")
	}
	if len(search.Schema.Required) != 1 || search.Schema.Required[0] != "query" {
		t.Errorf("required = %v", search.Schema.Required)
	}
}

func TestSpecFor_UnknownName(t *testing.T) {
	spec := SpecFor("nope")
	if spec.Name != "nope" || spec.Schema.Type != "object" || spec.Schema.Properties == nil {
		t.Errorf("unexpected spec %+v", spec)
	}
}
