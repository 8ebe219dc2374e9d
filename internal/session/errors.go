package session

import "fmt"

// Stage names a pipeline step.
type Stage string

const (
	StageDecode    Stage = "decode"
	StageExtract   Stage = "extract"
	StageLoadModel Stage = "load_model"
	StagePredict   Stage = "predict"
	StageFormat    Stage = "format"
)

// StageError reports which pipeline stage failed.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s stage failed: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

func stageErr(stage Stage, err error) error {
	return &StageError{Stage: stage, Err: err}
}
