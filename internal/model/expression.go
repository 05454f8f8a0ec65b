package model

// ExpressionType distinguishes combinator nodes from predicates.
type ExpressionType string

// Supported expression node types.
const (
	ExpressionLogical    ExpressionType = "LOGICAL"
	ExpressionRelational ExpressionType = "RELATIONAL"
)

// ExpressionOp is a boolean combinator or a relational operator.
type ExpressionOp string

// Logical operators.
const (
	OpAnd ExpressionOp = "AND"
	OpOr  ExpressionOp = "OR"
)

// Relational operators.
const (
	OpEquals     ExpressionOp = "EQ"
	OpNotEqual   ExpressionOp = "NOT_EQ"
	OpContains   ExpressionOp = "CONTAINS"
	OpNotContain ExpressionOp = "NOT_CONTAIN"
	OpMatches    ExpressionOp = "MATCHES"
)

// OperandType says how an operand value is resolved.
type OperandType string

// Supported operand types.
const (
	OperandArticle OperandType = "ARTICLE"
	OperandString  OperandType = "STRING"
)

// Operand is either a literal string or a reference to an article field.
type Operand struct {
	Type  OperandType `json:"type"`
	Value string      `json:"value"`
}

// FilterExpression is a node of a connection's filter tree.
type FilterExpression struct {
	Type     ExpressionType     `json:"type"`
	Op       ExpressionOp       `json:"op"`
	Children []FilterExpression `json:"children,omitempty"`
	Left     *Operand           `json:"left,omitempty"`
	Right    *Operand           `json:"right,omitempty"`
}
