package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/suiterunner/harness/internal/model"
)

// fileSuiteSource is a stand-in for the out-of-scope test-discovery
// collaborator (spec.md §1): it decodes a flat JSON list of test cases
// from disk rather than parsing any real source language. Real
// integrations supply their own enqueue.SuiteSource.
type fileSuiteSource struct {
	path string
}

// suiteTestCase mirrors model.TestCase with JSON-friendly field names.
type suiteTestCase struct {
	Name        string          `json:"name"`
	Config      string          `json:"config"`
	Expectation []string        `json:"expectation"`
	Commands    []suiteCommand  `json:"commands"`
}

type suiteCommand struct {
	Executable  string            `json:"executable"`
	Args        []string          `json:"args"`
	Env         map[string]string `json:"env"`
	DisplayName string            `json:"display_name"`
}

func (f fileSuiteSource) TestCases(ctx context.Context) ([]model.TestCase, error) {
	b, err := os.ReadFile(f.path)
	if err != nil {
		return nil, fmt.Errorf("read suite file %s: %w", f.path, err)
	}

	var raw []suiteTestCase
	if err := json.Unmarshal(b, &raw); err != nil {
		return nil, fmt.Errorf("decode suite file %s: %w", f.path, err)
	}

	cases := make([]model.TestCase, len(raw))
	for i, rtc := range raw {
		exp, err := parseExpectation(rtc.Expectation)
		if err != nil {
			return nil, fmt.Errorf("test case %q: %w", rtc.Name, err)
		}
		commands := make([]model.Command, len(rtc.Commands))
		for j, rc := range rtc.Commands {
			commands[j] = model.Command{
				Executable:  rc.Executable,
				Args:        rc.Args,
				Env:         rc.Env,
				DisplayName: rc.DisplayName,
			}
		}
		cases[i] = model.TestCase{
			Name:        rtc.Name,
			Commands:    commands,
			Config:      model.ConfigHandle(rtc.Config),
			Expectation: exp,
		}
	}
	return cases, nil
}

var expectationNames = map[string]model.Expectation{
	"pass":              model.ExpectPass,
	"fail":              model.ExpectFail,
	"crash":             model.ExpectCrash,
	"timeout":           model.ExpectTimeout,
	"compile-time-error": model.ExpectCompileTimeError,
	"runtime-error":     model.ExpectRuntimeError,
	"static-warning":    model.ExpectStaticWarning,
	"syntax-error":      model.ExpectSyntaxError,
	"skip":              model.ExpectSkip,
	"skip-by-design":    model.ExpectSkipByDesign,
	"slow":              model.ExpectSlow,
	"extra-slow":        model.ExpectExtraSlow,
}

func parseExpectation(names []string) (model.Expectation, error) {
	if len(names) == 0 {
		return model.ExpectPass, nil
	}
	var exp model.Expectation
	for _, n := range names {
		bit, ok := expectationNames[n]
		if !ok {
			return 0, fmt.Errorf("unknown expectation %q", n)
		}
		exp |= bit
	}
	return exp, nil
}
