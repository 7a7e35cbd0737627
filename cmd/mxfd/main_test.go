package main

import "testing"

func TestBuildRootCmdIncludesServeSubcommand(t *testing.T) {
	cmd := buildRootCmd()
	names := map[string]bool{}
	for _, sub := range cmd.Commands() {
		names[sub.Name()] = true
	}

	if !names["serve"] {
		t.Fatalf("expected subcommand %q to be registered", "serve")
	}
}

func TestRunServeFailsOnMissingConfig(t *testing.T) {
	cmd := buildServeCmd()
	cmd.SetArgs([]string{"--config", "/nonexistent/mxf.yaml"})
	if err := cmd.Execute(); err == nil {
		t.Fatal("expected an error when the config file does not exist")
	}
}
