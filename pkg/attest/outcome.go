package attest

import (
	"errors"
	"fmt"
)

// Outcome 是一次调用对外报告的唯一结论标签
type Outcome string

const (
	OutcomeSealed            Outcome = "SEALED"
	OutcomeIntact            Outcome = "INTACT"
	OutcomeIOFailure         Outcome = "IO_FAILURE"
	OutcomeStoreFailure      Outcome = "STORE_FAILURE"
	OutcomeRejected          Outcome = "REJECTED"
	OutcomeUnknown           Outcome = "UNKNOWN"
	OutcomeTampered          Outcome = "TAMPERED"
	OutcomeNoRecord          Outcome = "NO_RECORD"
	OutcomeLedgerUnavailable Outcome = "LEDGER_UNAVAILABLE"
)

// ExitCodeGeneric 用于配置错误等不属于任何结论的失败
const ExitCodeGeneric = 1

var exitCodes = map[Outcome]int{
	OutcomeSealed:            0,
	OutcomeIntact:            0,
	OutcomeIOFailure:         2,
	OutcomeStoreFailure:      3,
	OutcomeRejected:          4,
	OutcomeUnknown:           5,
	OutcomeTampered:          6,
	OutcomeNoRecord:          7,
	OutcomeLedgerUnavailable: 8,
}

// ExitCode 返回进程退出码
func (o Outcome) ExitCode() int {
	if code, ok := exitCodes[o]; ok {
		return code
	}
	return ExitCodeGeneric
}

// Success 只有 SEALED 和 INTACT 是确定的成功
func (o Outcome) Success() bool {
	return o == OutcomeSealed || o == OutcomeIntact
}

// ParseOutcome 用于从 journal 或远端响应中还原标签
func ParseOutcome(s string) (Outcome, error) {
	o := Outcome(s)
	if _, ok := exitCodes[o]; !ok {
		return "", fmt.Errorf("unknown outcome %q", s)
	}
	return o, nil
}

// OutcomeError 把失败类结论带回调用方
type OutcomeError struct {
	Outcome Outcome
	Err     error
}

func (e *OutcomeError) Error() string {
	return fmt.Sprintf("%s: %v", e.Outcome, e.Err)
}

func (e *OutcomeError) Unwrap() error { return e.Err }

func fail(o Outcome, err error) error {
	return &OutcomeError{Outcome: o, Err: err}
}

// ExitCode 把错误映射为退出码
// nil 为 0；携带结论的错误按结论映射；其余一律为 1
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var oe *OutcomeError
	if errors.As(err, &oe) {
		return oe.Outcome.ExitCode()
	}
	return ExitCodeGeneric
}

// Worst 在批量处理中选出最严重的退出码
func Worst(codes ...int) int {
	worst := 0
	for _, c := range codes {
		if c > worst {
			worst = c
		}
	}
	return worst
}
