package cvsite

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/aws/smithy-go"
)

func TestErrorCodeAndExitCode(t *testing.T) {
	cases := []struct {
		name string
		err  error
		code string
		exit int
	}{
		{name: "nil", err: nil, code: "", exit: 0},
		{name: "configuration", err: NewConfigurationError("domain.name", "", "must not be empty"), code: "cvsite.configuration", exit: 2},
		{name: "wrapped configuration", err: fmt.Errorf("load: %w", NewConfigurationError("repository.owner", "", "required")), code: "cvsite.configuration", exit: 2},
		{name: "stage", err: &StageExecutionError{Stage: "build", Action: "npm run build", ExitCode: 1}, code: "cvsite.stage_execution", exit: 1},
		{name: "provisioning", err: NewProvisioningError("Zone", "hosted_zone", errors.New("boom")), code: "cvsite.provisioning", exit: 1},
		{name: "other", err: errors.New("boom"), code: "cvsite.internal", exit: 1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ErrorCode(tc.err); got != tc.code {
				t.Fatalf("ErrorCode: got %q want %q", got, tc.code)
			}
			if got := ExitCode(tc.err); got != tc.exit {
				t.Fatalf("ExitCode: got %d want %d", got, tc.exit)
			}
		})
	}
}

func TestStageExecutionError_MessageNamesStageAndAction(t *testing.T) {
	cause := errors.New("exit status 2")
	err := &StageExecutionError{Stage: "install", Action: "npm ci", ExitCode: 2, Err: cause}

	msg := err.Error()
	for _, want := range []string{`"install"`, `"npm ci"`, "exited 2", "exit status 2"} {
		if !strings.Contains(msg, want) {
			t.Fatalf("expected %q in %q", want, msg)
		}
	}
	if !errors.Is(err, cause) {
		t.Fatal("expected cause to unwrap")
	}
	if !IsStageExecutionError(fmt.Errorf("run: %w", err)) {
		t.Fatal("expected wrapped stage error to be detected")
	}
}

func TestNewProvisioningError_CapturesAPIErrorCode(t *testing.T) {
	apiErr := &smithy.GenericAPIError{Code: "InvalidChangeBatch", Message: "record already exists"}
	err := NewProvisioningError("RecordSet", "record_set", fmt.Errorf("apply: %w", apiErr))

	if err.Code != "InvalidChangeBatch" {
		t.Fatalf("expected api error code, got %q", err.Code)
	}
	if !strings.Contains(err.Error(), "[InvalidChangeBatch]") {
		t.Fatalf("expected code in message, got %q", err.Error())
	}
	if !IsProvisioningError(err) {
		t.Fatal("expected provisioning error")
	}
	if IsConfigurationError(err) {
		t.Fatal("provisioning error must not be a configuration error")
	}
}

func TestConfigurationError_Message(t *testing.T) {
	err := NewConfigurationError(" domain.name ", "bad_domain", " invalid label ")
	if got := err.Error(); got != `cvsite.configuration: domain.name "bad_domain": invalid label` {
		t.Fatalf("unexpected message %q", got)
	}
	err = NewConfigurationError("repository.name", "", "required")
	if got := err.Error(); got != "cvsite.configuration: repository.name: required" {
		t.Fatalf("unexpected message %q", got)
	}
}

func TestULIDGenerator_ProducesDistinctIDs(t *testing.T) {
	gen := ULIDGenerator{}
	a, b := gen.NewID(), gen.NewID()
	if len(a) != 26 || len(b) != 26 {
		t.Fatalf("expected 26 char ulids, got %q %q", a, b)
	}
	if a == b {
		t.Fatal("expected distinct ids")
	}
}
