package execution

import (
	"github.com/quantlink/spreadgrid/pkg/instrument"
)

// ForceTaskPool 固定容量的 ForceTask 池
type ForceTaskPool struct {
	tasks     []*ForceTask
	taskCount int
}

// NewForceTaskPool 创建 maxWorker 个槽位
func NewForceTaskPool(maxWorker int, params *Params, arena *instrument.Arena) *ForceTaskPool {
	p := &ForceTaskPool{tasks: make([]*ForceTask, maxWorker)}
	for i := range p.tasks {
		p.tasks[i] = newForceTask(i, params, arena)
	}
	return p
}

// Acquire 取第一个空闲槽位，并分配单调递增的 taskID；池满返回 nil
func (p *ForceTaskPool) Acquire() *ForceTask {
	for _, t := range p.tasks {
		if !t.HasTask() {
			t.init(p.taskCount)
			p.taskCount++
			return t
		}
	}
	return nil
}

// Get 按 workerID 取任务
func (p *ForceTaskPool) Get(workerID int) *ForceTask {
	if workerID < 0 || workerID >= len(p.tasks) {
		return nil
	}
	return p.tasks[workerID]
}

// Size 槽位数
func (p *ForceTaskPool) Size() int { return len(p.tasks) }

// Busy 已占用槽位数
func (p *ForceTaskPool) Busy() int {
	n := 0
	for _, t := range p.tasks {
		if t.HasTask() {
			n++
		}
	}
	return n
}
