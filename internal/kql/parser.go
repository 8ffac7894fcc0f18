// Package kql parses Kibana Query Language expressions and translates them,
// together with structured filters, into Elasticsearch query DSL.
package kql

import (
	"errors"
	"fmt"
	"strings"

	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"
)

// ErrSyntax is returned when a KQL expression cannot be parsed.
var ErrSyntax = errors.New("kql syntax error")

var kqlLexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "Whitespace", Pattern: `\s+`},
	{Name: "String", Pattern: `"(?:\\.|[^"\\])*"`},
	{Name: "Range", Pattern: `<=|>=|<|>`},
	{Name: "Colon", Pattern: `:`},
	{Name: "LParen", Pattern: `\(`},
	{Name: "RParen", Pattern: `\)`},
	{Name: "Word", Pattern: `(?:\\.|[^\s():<>"\\])+`},
	// Keyword never matches in the lexer; words are retyped by keywordMapper.
	{Name: "Keyword", Pattern: `[^\s\S]`},
})

var keywordType = kqlLexer.Symbols()["Keyword"]

// keywordMapper turns bare and/or/not words into lower-case keywords.
func keywordMapper(tok lexer.Token) (lexer.Token, error) {
	switch strings.ToLower(tok.Value) {
	case "and", "or", "not":
		tok.Type = keywordType
		tok.Value = strings.ToLower(tok.Value)
	}
	return tok, nil
}

// unquoteMapper strips the surrounding quotes and resolves \" and \\ escapes.
func unquoteMapper(tok lexer.Token) (lexer.Token, error) {
	v := tok.Value[1 : len(tok.Value)-1]
	var b strings.Builder
	for i := 0; i < len(v); i++ {
		if v[i] == '\\' && i+1 < len(v) && (v[i+1] == '"' || v[i+1] == '\\') {
			i++
		}
		b.WriteByte(v[i])
	}
	tok.Value = b.String()
	return tok, nil
}

// ast is the root of a parsed expression. An empty expression has a nil Expr.
type ast struct {
	Expr *orNode `parser:"@@?"`
}

type orNode struct {
	Terms []*andNode `parser:"@@ ( \"or\" @@ )*"`
}

type andNode struct {
	Terms []*notNode `parser:"@@ ( \"and\" @@ )*"`
}

type notNode struct {
	Not  bool     `parser:"@\"not\"?"`
	Expr *primary `parser:"@@"`
}

type primary struct {
	Group *orNode    `parser:"  \"(\" @@ \")\""`
	Field *fieldExpr `parser:"| @@"`
	Text  *valueNode `parser:"| @@"`
}

type fieldExpr struct {
	Name  string     `parser:"@(Word | String)"`
	Range *rangeExpr `parser:"( @@"`
	Match *valueExpr `parser:"| \":\" @@ )"`
}

type rangeExpr struct {
	Op    string `parser:"@Range"`
	Value string `parser:"@(Word | String)"`
}

type valueExpr struct {
	Group *valueOr   `parser:"  \"(\" @@ \")\""`
	Value *valueNode `parser:"| @@"`
}

type valueOr struct {
	Terms []*valueAnd `parser:"@@ ( \"or\" @@ )*"`
}

type valueAnd struct {
	Terms []*valueNot `parser:"@@ ( \"and\" @@ )*"`
}

type valueNot struct {
	Not   bool       `parser:"@\"not\"?"`
	Value *valueExpr `parser:"@@"`
}

type valueNode struct {
	Quoted *string  `parser:"  @String"`
	Words  []string `parser:"| @Word+"`
}

var parser = participle.MustBuild[ast](
	participle.Lexer(kqlLexer),
	participle.Elide("Whitespace"),
	participle.Map(keywordMapper, "Word"),
	participle.Map(unquoteMapper, "String"),
	participle.UseLookahead(4),
)

// Expression is a parsed KQL expression.
type Expression struct {
	root *ast
	raw  string
}

// Parse parses a KQL expression. Blank input yields an empty expression.
func Parse(input string) (*Expression, error) {
	root, err := parser.ParseString("", input)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSyntax, err)
	}
	return &Expression{root: root, raw: input}, nil
}

// IsEmpty returns true if the expression matches everything.
func (e *Expression) IsEmpty() bool {
	return e.root == nil || e.root.Expr == nil
}

// String returns the source text of the expression.
func (e *Expression) String() string {
	return e.raw
}
