package main

import (
	"errors"
	"testing"

	"github.com/golang-migrate/migrate/v4"
	"github.com/stretchr/testify/assert"
)

type fakeMigrator struct {
	upErr      error
	stepsErr   error
	steps      []int
	ups        int
	version    uint
	versionErr error
}

func (f *fakeMigrator) Up() error {
	f.ups++
	return f.upErr
}

func (f *fakeMigrator) Steps(n int) error {
	f.steps = append(f.steps, n)
	return f.stepsErr
}

func (f *fakeMigrator) Version() (uint, bool, error) {
	return f.version, false, f.versionErr
}

func TestRun(t *testing.T) {
	tests := []struct {
		name      string
		args      []string
		m         *fakeMigrator
		wantErr   string
		wantUps   int
		wantSteps []int
	}{
		{name: "up", args: []string{"up"}, m: &fakeMigrator{version: 1}, wantUps: 1},
		{name: "up with nothing to do", args: []string{"up"}, m: &fakeMigrator{upErr: migrate.ErrNoChange, version: 1}, wantUps: 1},
		{name: "up failure", args: []string{"up"}, m: &fakeMigrator{upErr: errors.New("syntax error")}, wantErr: "failed to run migrations", wantUps: 1},
		{name: "down defaults to one step", args: []string{"down"}, m: &fakeMigrator{}, wantSteps: []int{-1}},
		{name: "down n steps", args: []string{"down", "3"}, m: &fakeMigrator{}, wantSteps: []int{-3}},
		{name: "down bad steps", args: []string{"down", "x"}, m: &fakeMigrator{}, wantErr: "invalid steps"},
		{name: "down zero steps", args: []string{"down", "0"}, m: &fakeMigrator{}, wantErr: "invalid steps"},
		{name: "version on empty database", args: []string{"version"}, m: &fakeMigrator{versionErr: migrate.ErrNilVersion}},
		{name: "no command", args: nil, m: &fakeMigrator{}, wantErr: "usage"},
		{name: "unknown command", args: []string{"drop"}, m: &fakeMigrator{}, wantErr: "usage"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := run(tt.m, tt.args)
			if tt.wantErr != "" {
				assert.ErrorContains(t, err, tt.wantErr)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tt.wantUps, tt.m.ups)
			assert.Equal(t, tt.wantSteps, tt.m.steps)
		})
	}
}
