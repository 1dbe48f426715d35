package engine

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/quantlink/spreadgrid/pkg/logger"
)

// 运维命令号
const (
	CmdRefMid         = 0
	CmdMaxLot         = 1
	CmdStepSize       = 2
	CmdEnableTrade    = 3
	CmdTryOrderWait   = 4
	CmdTryPriceAdj    = 5
	CmdForceOrderWait = 6
	CmdForceTaskWait  = 7
	CmdStartPriceAdj  = 8
	CmdStepAdjAfterMD = 9
	CmdAdjPosStep     = 10
	CmdMinAvailable   = 11
	CmdOffsetStrategy = 12
	CmdRefresh        = 13
)

// Command 运维命令；价差相关命令用 Spread 指定价差序号
type Command struct {
	ID     int     `json:"id"`
	Spread int     `json:"spread"`
	Int    int     `json:"int"`
	Float  float64 `json:"float"`
}

// ExecCommand 执行一条运维命令，参数非法时不修改任何状态
func (e *Engine) ExecCommand(cmd Command) (string, error) {
	msg, err := e.applyCommand(cmd)
	fields := logrus.Fields{"id": cmd.ID, "spread": cmd.Spread, "int": cmd.Int, "float": cmd.Float}
	if err != nil {
		logger.WithFields(fields).Warnf("[Engine] command rejected: %v", err)
		return "", err
	}
	logger.WithFields(fields).Infof("[Engine] command: %s", msg)

	prev := e.control.Constrain()
	e.control.refresh()
	e.noteConstrain(prev)
	e.updateConstrain()
	e.refresh()
	e.persist()
	return msg, nil
}

func (e *Engine) applyCommand(cmd Command) (string, error) {
	switch cmd.ID {
	case CmdRefMid, CmdMaxLot, CmdStepSize:
		if cmd.Spread < 0 || cmd.Spread >= len(e.spreads) {
			return "", errors.Wrapf(ErrUnknownSpread, "spread %d", cmd.Spread)
		}
		sp := e.spreads[cmd.Spread]
		st := sp.Signal.State()
		switch cmd.ID {
		case CmdRefMid:
			st.RefMid = cmd.Float
			sp.Signal.Reprice()
			return fmt.Sprintf("%s refMid=%g", sp.Name(), st.RefMid), nil
		case CmdMaxLot:
			if cmd.Float < 0 {
				return "", errors.Wrapf(ErrInvalidCommand, "maxLot must >= 0")
			}
			st.SprdMaxLot = int(cmd.Float)
			sp.Signal.RefreshLimits()
			return fmt.Sprintf("%s maxLot=%d", sp.Name(), st.SprdMaxLot), nil
		default:
			if cmd.Float < 0 {
				return "", errors.Wrapf(ErrInvalidCommand, "stepSize must >= 0")
			}
			st.StepSize = int(cmd.Float)
			sp.Signal.RefreshLimits()
			return fmt.Sprintf("%s stepSize=%d", sp.Name(), st.StepSize), nil
		}
	case CmdEnableTrade:
		if cmd.Int < -2 || cmd.Int > 1 {
			return "", errors.Wrapf(ErrInvalidCommand, "enable %d not in [-2, 1]", cmd.Int)
		}
		e.control.setEnable(cmd.Int)
		return fmt.Sprintf("enable=%d", cmd.Int), nil
	case CmdTryOrderWait:
		e.params.TryOrderWait = cmd.Int
		return fmt.Sprintf("tryOrderWait=%d", cmd.Int), nil
	case CmdTryPriceAdj:
		e.params.TryPriceAdj = cmd.Int
		return fmt.Sprintf("tryPriceAdj=%d", cmd.Int), nil
	case CmdForceOrderWait:
		e.params.ForceOrderWait = cmd.Int
		return fmt.Sprintf("forceOrderWait=%d", cmd.Int), nil
	case CmdForceTaskWait:
		e.params.ForceTaskWait = cmd.Int
		return fmt.Sprintf("forceTaskWait=%d", cmd.Int), nil
	case CmdStartPriceAdj:
		e.params.StartPriceAdj = cmd.Int
		return fmt.Sprintf("startPriceAdj=%d", cmd.Int), nil
	case CmdStepAdjAfterMD:
		e.params.StepAdjAfterMD = cmd.Int
		return fmt.Sprintf("stepAdjAfterMD=%d", cmd.Int), nil
	case CmdAdjPosStep:
		if cmd.Int <= 0 {
			return "", errors.Wrapf(ErrInvalidCommand, "adjPosStep must > 0")
		}
		e.adjPosStep = cmd.Int
		return fmt.Sprintf("adjPosStep=%d", cmd.Int), nil
	case CmdMinAvailable:
		if cmd.Float <= 0 {
			return "", errors.Wrapf(ErrInvalidCommand, "minAvailable must > 0")
		}
		e.minAvailable = cmd.Float
		return fmt.Sprintf("minAvailable=%g", cmd.Float), nil
	case CmdOffsetStrategy:
		e.offsetStrategy = cmd.Int
		return fmt.Sprintf("offsetStrategy=%d", cmd.Int), nil
	case CmdRefresh:
		return "refresh", nil
	}
	return "", errors.Wrapf(ErrInvalidCommand, "command %d", cmd.ID)
}
