package headless

import (
	"errors"
	"testing"
	"time"
)

func TestConstraintManager_FileCount(t *testing.T) {
	cm := NewConstraintManager(ConstraintConfig{MaxFiles: 2})

	if err := cm.RecordFileModification("a.py", 1, 0); err != nil {
		t.Fatalf("first file: unexpected error %v", err)
	}
	if err := cm.RecordFileModification("./a.py", 1, 0); err != nil {
		t.Fatalf("same file again: unexpected error %v", err)
	}
	if err := cm.RecordFileModification("b.py", 1, 0); err != nil {
		t.Fatalf("second file: unexpected error %v", err)
	}

	err := cm.RecordFileModification("c.py", 1, 0)
	var violation *ConstraintViolation
	if !errors.As(err, &violation) {
		t.Fatalf("expected ConstraintViolation, got %v", err)
	}
	if violation.Type != ViolationFileCount {
		t.Errorf("violation type = %s, want %s", violation.Type, ViolationFileCount)
	}

	state := cm.GetCurrentState()
	if state.TotalFiles != 2 {
		t.Errorf("TotalFiles = %d, want 2", state.TotalFiles)
	}
	if state.TotalLinesAdded != 3 {
		t.Errorf("TotalLinesAdded = %d, want 3", state.TotalLinesAdded)
	}
}

func TestConstraintManager_LineCount(t *testing.T) {
	cm := NewConstraintManager(ConstraintConfig{MaxLinesChanged: 10})

	if err := cm.RecordFileModification("a.py", 4, 4); err != nil {
		t.Fatalf("unexpected error %v", err)
	}

	err := cm.RecordFileModification("b.py", 2, 1)
	var violation *ConstraintViolation
	if !errors.As(err, &violation) {
		t.Fatalf("expected ConstraintViolation, got %v", err)
	}
	if violation.Type != ViolationLineCount {
		t.Errorf("violation type = %s, want %s", violation.Type, ViolationLineCount)
	}
	if violation.Details["current_total"] != 11 {
		t.Errorf("current_total = %v, want 11", violation.Details["current_total"])
	}
}

func TestConstraintManager_Unlimited(t *testing.T) {
	cm := NewConstraintManager(ConstraintConfig{})
	for i := 0; i < 50; i++ {
		if err := cm.RecordFileModification(string(rune('a'+i%26))+".py", 100, 100); err != nil {
			t.Fatalf("unexpected error %v", err)
		}
	}
	if err := cm.CheckPlan(make([]string, 100)); err != nil {
		t.Errorf("CheckPlan() with no limit = %v", err)
	}
	if err := cm.CheckTimeout(); err != nil {
		t.Errorf("CheckTimeout() with no limit = %v", err)
	}
}

func TestConstraintManager_CheckPlan(t *testing.T) {
	tests := []struct {
		name    string
		paths   []string
		wantErr bool
	}{
		{name: "within limit", paths: []string{"a.py", "b.py"}},
		{name: "duplicates count once", paths: []string{"a.py", "./a.py", "b.py", "a.py"}},
		{name: "over limit", paths: []string{"a.py", "b.py", "c.py"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cm := NewConstraintManager(ConstraintConfig{MaxFiles: 2})
			err := cm.CheckPlan(tt.paths)
			if (err != nil) != tt.wantErr {
				t.Errorf("CheckPlan() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestConstraintManager_Timeout(t *testing.T) {
	cm := NewConstraintManager(ConstraintConfig{Timeout: time.Millisecond})
	time.Sleep(5 * time.Millisecond)

	err := cm.CheckTimeout()
	var violation *ConstraintViolation
	if !errors.As(err, &violation) || violation.Type != ViolationTimeout {
		t.Fatalf("expected timeout violation, got %v", err)
	}
}

func TestConstraintManager_TokenUsage(t *testing.T) {
	cm := NewConstraintManager(ConstraintConfig{})
	cm.RecordTokenUsage(1200)
	cm.RecordTokenUsage(300)

	if got := cm.GetCurrentState().TokensUsed; got != 1500 {
		t.Errorf("TokensUsed = %d, want 1500", got)
	}
}
