package engine

import (
	"github.com/pkg/errors"

	"github.com/quantlink/spreadgrid/pkg/instrument"
)

var (
	// ErrDuplicateLeg 同一合约重复订阅
	ErrDuplicateLeg = instrument.ErrDuplicateLeg
	// ErrUnknownInstrument 价差引用了未配置的合约
	ErrUnknownInstrument = errors.New("unknown instrument")
	// ErrUnknownSpread 命令中的价差序号不存在
	ErrUnknownSpread = errors.New("Wrong instruments")
	// ErrInvalidCommand 未知命令或参数非法
	ErrInvalidCommand = errors.New("未知命令")
)
