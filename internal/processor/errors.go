package processor

import (
	"errors"
	"fmt"
)

// 基础错误类型。校验与检索错误是致命的，提取与序列化错误在流水线内部降级处理。
var (
	ErrValidation    = errors.New("输入校验失败")
	ErrDuplicate     = errors.New("重复的简历内容")
	ErrExtraction    = errors.New("结构化提取失败")
	ErrRetrieval     = errors.New("向量库操作失败")
	ErrSerialization = errors.New("文档序列化失败")
)

// ProcessError 包含详细错误信息的自定义错误
type ProcessError struct {
	CandidateID string
	Op          string
	BaseErr     error
	Detail      string
}

func (e *ProcessError) Error() string {
	if e.CandidateID != "" {
		return fmt.Sprintf("%s (操作:%s, 候选人:%s): %s", e.BaseErr, e.Op, e.CandidateID, e.Detail)
	}
	return fmt.Sprintf("%s (操作:%s): %s", e.BaseErr, e.Op, e.Detail)
}

func (e *ProcessError) Unwrap() error {
	return e.BaseErr
}

// Is 实现 errors.Is 以支持按基础错误类型比较
func (e *ProcessError) Is(target error) bool {
	return errors.Is(e.BaseErr, target)
}

func NewValidationError(op, detail string) error {
	return &ProcessError{Op: op, BaseErr: ErrValidation, Detail: detail}
}

func NewDuplicateError(md5Hex string) error {
	return &ProcessError{Op: "dedup", BaseErr: ErrDuplicate, Detail: fmt.Sprintf("内容MD5 %s 已存在", md5Hex)}
}

func NewRetrievalError(candidateID, detail string) error {
	return &ProcessError{CandidateID: candidateID, Op: "vector_store", BaseErr: ErrRetrieval, Detail: detail}
}

func NewSerializationError(candidateID, detail string) error {
	return &ProcessError{CandidateID: candidateID, Op: "serialize", BaseErr: ErrSerialization, Detail: detail}
}
