package ports

// ConditionEvaluator evaluates target- and task-level condition
// expressions against the request's current property state. The engine
// treats the expression language as opaque.
//
//go:generate mockgen -source=evaluator.go -destination=mocks/mock_evaluator.go -package=mocks
type ConditionEvaluator interface {
	// Evaluate returns the truth value of the expression. An empty
	// expression is true. A malformed expression is an error, not false.
	Evaluate(condition string, properties map[string]string) (bool, error)
}
