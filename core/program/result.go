package program

// StageOutcome 可降级阶段的执行结果。Degraded表示阶段内发生过
// 非致命问题（单文件测量失败、归一化超时等），任务继续但要记录。
// 致命问题走error返回，不进Outcome。
type StageOutcome struct {
	Degraded bool
	Notes    []string
}

// Degrade 记录一次降级
func (o *StageOutcome) Degrade(note string) {
	o.Degraded = true
	o.Notes = append(o.Notes, note)
}

// Merge 合并另一个阶段的结果
func (o *StageOutcome) Merge(other StageOutcome) {
	if other.Degraded {
		o.Degraded = true
		o.Notes = append(o.Notes, other.Notes...)
	}
}
