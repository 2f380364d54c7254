package domain

// State — состояние выполнения execution или task run.
//
// Жизненный цикл task run:
//
//	CREATED → RUNNING → SUCCESS
//	                  ↘ FAILED
//	(или) → KILLED (из CREATED или RUNNING, по внешнему сигналу)
//
// Состояние execution вычисляется из состояний его task runs
// (см. DeriveExecutionState).
type State string

const (
	// StateCreated — task run создан, но ещё не запущен.
	StateCreated State = "CREATED"

	// StateRunning — выполняется.
	StateRunning State = "RUNNING"

	// StateSuccess — успешно завершён.
	StateSuccess State = "SUCCESS"

	// StateFailed — завершился с ошибкой.
	StateFailed State = "FAILED"

	// StateKilled — остановлен внешним сигналом.
	StateKilled State = "KILLED"
)

// IsTerminal возвращает true, если состояние финальное.
func (s State) IsTerminal() bool {
	switch s {
	case StateSuccess, StateFailed, StateKilled:
		return true
	default:
		return false
	}
}

// IsValid проверяет, что значение входит в перечисление.
func (s State) IsValid() bool {
	switch s {
	case StateCreated, StateRunning, StateSuccess, StateFailed, StateKilled:
		return true
	default:
		return false
	}
}

// String возвращает строковое представление State.
func (s State) String() string {
	return string(s)
}

// CanTransition проверяет, допустим ли переход task run из from в to.
//
// CREATED → FAILED допустим только для синтетических узлов,
// которые никогда не запускались (ненайденный шаблон, цикл).
func CanTransition(from, to State) bool {
	switch from {
	case StateCreated:
		return to == StateRunning || to == StateFailed || to == StateKilled
	case StateRunning:
		return to == StateSuccess || to == StateFailed || to == StateKilled
	default:
		return false
	}
}

// DeriveExecutionState вычисляет состояние execution по состояниям task runs.
//
//   - FAILED, если хотя бы один task run FAILED и включён fail-fast;
//   - RUNNING, пока есть нефинальные task runs или ещё не всё запущено (pending);
//   - KILLED, если был kill и ничего не упало;
//   - SUCCESS, если всё завершилось успешно.
func DeriveExecutionState(states []State, pending, killed, failFast bool) State {
	failed := false
	active := false
	for _, s := range states {
		switch s {
		case StateFailed:
			failed = true
		case StateCreated, StateRunning:
			active = true
		}
	}

	switch {
	case failed && failFast:
		return StateFailed
	case active:
		return StateRunning
	case failed:
		return StateFailed
	case killed:
		return StateKilled
	case pending:
		return StateRunning
	default:
		return StateSuccess
	}
}
