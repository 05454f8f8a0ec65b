// Package filter implements the article matching engine.
package filter

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"rss_relay/internal/model"
)

// ErrInvalidExpression is returned by Validate for malformed filter trees.
var ErrInvalidExpression = errors.New("invalid filter expression")

// Passes reports whether an article should be delivered for a connection.
// A connection without filters lets every article through.
func Passes(expr *model.FilterExpression, a model.Article) bool {
	if expr == nil {
		return true
	}
	return Evaluate(expr, a)
}

// Evaluate checks whether an article matches a filter tree.
// An absent tree matches nothing.
// Logical nodes combine their children: AND requires all of them, OR any.
// Relational leaves compare case-folded operands; invalid regular
// expressions never match.
func Evaluate(expr *model.FilterExpression, a model.Article) bool {
	if expr == nil {
		return false
	}
	switch expr.Type {
	case model.ExpressionLogical:
		return evalLogical(expr, a)
	case model.ExpressionRelational:
		return evalRelational(expr, a)
	}
	return false
}

func evalLogical(expr *model.FilterExpression, a model.Article) bool {
	if len(expr.Children) == 0 {
		return false
	}
	switch expr.Op {
	case model.OpAnd:
		for i := range expr.Children {
			if !Evaluate(&expr.Children[i], a) {
				return false
			}
		}
		return true
	case model.OpOr:
		for i := range expr.Children {
			if Evaluate(&expr.Children[i], a) {
				return true
			}
		}
		return false
	}
	return false
}

func evalRelational(expr *model.FilterExpression, a model.Article) bool {
	if expr.Left == nil || expr.Right == nil {
		return false
	}
	right := resolve(*expr.Right, a)

	// YouTube feeds carry the video description in a media field.
	if expr.Left.Type == model.OperandArticle && expr.Left.Value == model.FieldDescription && a.IsYouTubeVideo() {
		media := model.Operand{Type: model.OperandArticle, Value: model.FieldMediaDescription}
		if expr.Op == model.OpContains || expr.Op == model.OpMatches || expr.Op == model.OpEquals {
			if compare(expr.Op, resolve(media, a), right) {
				return true
			}
		}
	}

	return compare(expr.Op, resolve(*expr.Left, a), right)
}

func compare(op model.ExpressionOp, left, right operandValue) bool {
	switch op {
	case model.OpEquals:
		return left.folded == right.folded
	case model.OpNotEqual:
		return left.folded != right.folded
	case model.OpContains:
		return strings.Contains(left.folded, right.folded)
	case model.OpNotContain:
		return !strings.Contains(left.folded, right.folded)
	case model.OpMatches:
		re, err := regexp.Compile("(?i)" + right.raw)
		if err != nil {
			return false
		}
		return re.MatchString(left.raw)
	}
	return false
}

type operandValue struct {
	raw    string
	folded string
}

// resolve turns an operand into its value. Missing article fields resolve
// to the empty string.
func resolve(o model.Operand, a model.Article) operandValue {
	v := o.Value
	if o.Type == model.OperandArticle {
		v = a.Value(o.Value)
	}
	return operandValue{raw: v, folded: strings.ToLower(v)}
}

// Validate checks that a filter tree is well formed and that every regular
// expression compiles.
func Validate(expr *model.FilterExpression) error {
	if expr == nil {
		return nil
	}
	switch expr.Type {
	case model.ExpressionLogical:
		if expr.Op != model.OpAnd && expr.Op != model.OpOr {
			return fmt.Errorf("%w: unknown logical op %q", ErrInvalidExpression, expr.Op)
		}
		for i := range expr.Children {
			if err := Validate(&expr.Children[i]); err != nil {
				return err
			}
		}
		return nil
	case model.ExpressionRelational:
		if expr.Left == nil || expr.Right == nil {
			return fmt.Errorf("%w: relational node needs both operands", ErrInvalidExpression)
		}
		switch expr.Op {
		case model.OpEquals, model.OpNotEqual, model.OpContains, model.OpNotContain:
			return nil
		case model.OpMatches:
			if expr.Right.Type != model.OperandString {
				return nil
			}
			return ValidateRegex(expr.Right.Value)
		}
		return fmt.Errorf("%w: unknown relational op %q", ErrInvalidExpression, expr.Op)
	}
	return fmt.Errorf("%w: unknown node type %q", ErrInvalidExpression, expr.Type)
}

// ValidateRegex checks whether a pattern is a valid regular expression.
func ValidateRegex(pattern string) error {
	_, err := regexp.Compile("(?i)" + pattern)
	if err != nil {
		return fmt.Errorf("%w: invalid regex: %w", ErrInvalidExpression, err)
	}
	return nil
}
