package main

import (
	"testing"
)

func TestRootCmd_Subcommands(t *testing.T) {
	root := newRootCmd()
	for _, name := range []string{"serve", "ask", "index", "scrape"} {
		cmd, _, err := root.Find([]string{name})
		if err != nil || cmd.Name() != name {
			t.Errorf("subcommand %q not registered: %v", name, err)
		}
	}
	if root.PersistentFlags().Lookup("env") == nil || root.PersistentFlags().Lookup("config") == nil {
		t.Error("missing persistent flags")
	}
}

func TestAskCmd_RequiresQuery(t *testing.T) {
	root := newRootCmd()
	root.SetArgs([]string{"ask"})
	root.SetOut(&discard{})
	root.SetErr(&discard{})
	if err := root.Execute(); err == nil {
		t.Fatal("expected an error without a query argument")
	}
}

type discard struct{}

func (*discard) Write(p []byte) (int, error) { return len(p), nil }
