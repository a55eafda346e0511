package ast

import (
	"fmt"

	json "github.com/goccy/go-json"

	"github.com/invariantlabs-ai/invariant-go/internal/errors"
)

// JSON codec for serialized policy documents. The wire form is a tree
// of objects discriminated by a "kind" field:
//
//	{"source": "my-policy", "rules": [
//	  {"kind": "raise", "exception": {"kind": "string", "value": "leak"},
//	   "body": [
//	     {"kind": "decl", "target": {"kind": "typed", "name": "msg", "type": "Message"}},
//	     {"kind": "expr", "x": {"kind": "binary", "op": "==",
//	        "left": {"kind": "member", "x": {"kind": "ident", "name": "msg"}, "member": "role"},
//	        "right": {"kind": "string", "value": "admin"}}}
//	  ]}
//	]}
//
// Decoding is infallible for structurally valid input; name resolution
// happens separately via Resolve.

type jsonDoc struct {
	Source string            `json:"source"`
	Rules  []json.RawMessage `json:"rules"`
}

// DecodePolicy decodes a serialized policy document. The payload is
// either a {"source", "rules"} object or a bare array of statements.
func DecodePolicy(data []byte) (*PolicyRoot, error) {
	const op = "ast.DecodePolicy"
	var doc jsonDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		var rules []json.RawMessage
		if err2 := json.Unmarshal(data, &rules); err2 != nil {
			return nil, errors.Wrap(err, errors.KindValidation, op, "policy document is not valid JSON")
		}
		doc.Rules = rules
	}
	root := &PolicyRoot{Source: doc.Source}
	for i, raw := range doc.Rules {
		st, err := decodeStmt(raw)
		if err != nil {
			return nil, errors.Wrapf(err, errors.KindValidation, op, "rule %d", i)
		}
		root.Stmts = append(root.Stmts, st)
	}
	return root, nil
}

type jsonNode struct {
	Kind      string            `json:"kind"`
	Line      int               `json:"line"`
	Column    int               `json:"column"`
	Value     json.RawMessage   `json:"value"`
	Modifier  string            `json:"modifier"`
	Name      string            `json:"name"`
	Namespace string            `json:"namespace"`
	Type      string            `json:"type"`
	Member    string            `json:"member"`
	Op        string            `json:"op"`
	X         json.RawMessage   `json:"x"`
	Key       json.RawMessage   `json:"key"`
	Left      json.RawMessage   `json:"left"`
	Right     json.RawMessage   `json:"right"`
	Then      json.RawMessage   `json:"then"`
	Cond      json.RawMessage   `json:"cond"`
	Else      json.RawMessage   `json:"else"`
	Func      string            `json:"func"`
	Args      []json.RawMessage `json:"args"`
	Kwargs    []jsonKwarg       `json:"kwargs"`
	Tool      json.RawMessage   `json:"tool"`
	Elems     []json.RawMessage `json:"elems"`
	Entries   []jsonEntry       `json:"entries"`
	Elem      json.RawMessage   `json:"elem"`
	Var       string            `json:"var"`
	Iterable  json.RawMessage   `json:"iterable"`
	Target    json.RawMessage   `json:"target"`
	Exception json.RawMessage   `json:"exception"`
	Body      []json.RawMessage `json:"body"`
	Min       *int              `json:"min"`
	Max       *int              `json:"max"`
	Module    string            `json:"module"`
	Names     []string          `json:"names"`
	Alias     string            `json:"alias"`
	Params    []string          `json:"params"`
	Candid    json.RawMessage   `json:"candidates"`
}

type jsonKwarg struct {
	Name  string          `json:"name"`
	Value json.RawMessage `json:"value"`
}

type jsonEntry struct {
	Key   string          `json:"key"`
	Value json.RawMessage `json:"value"`
}

func (n *jsonNode) pos() Pos { return Pos{Line: n.Line, Column: n.Column} }

func decodeRaw(raw json.RawMessage) (*jsonNode, error) {
	var n jsonNode
	if err := json.Unmarshal(raw, &n); err != nil {
		return nil, err
	}
	if n.Kind == "" {
		return nil, fmt.Errorf("node has no kind")
	}
	return &n, nil
}

func decodeStmt(raw json.RawMessage) (Stmt, error) {
	n, err := decodeRaw(raw)
	if err != nil {
		return nil, err
	}
	switch n.Kind {
	case "decl":
		target, err := decodeNode(n.Target)
		if err != nil {
			return nil, fmt.Errorf("decl target: %w", err)
		}
		d := &Declaration{Pos: n.pos(), Target: target}
		if len(n.Value) > 0 {
			v, err := decodeExpr(n.Value)
			if err != nil {
				return nil, fmt.Errorf("decl value: %w", err)
			}
			d.Value = v
		}
		return d, nil
	case "expr":
		x, err := decodeExpr(n.X)
		if err != nil {
			return nil, err
		}
		return &ExprStmt{Pos: n.pos(), X: x}, nil
	case "raise":
		rp := &RaisePolicy{Pos: n.pos()}
		if len(n.Exception) > 0 {
			exc, err := decodeExpr(n.Exception)
			if err != nil {
				return nil, fmt.Errorf("raise exception: %w", err)
			}
			rp.Exception = exc
		}
		body, err := decodeBody(n.Body)
		if err != nil {
			return nil, err
		}
		rp.Body = body
		return rp, nil
	case "forall", "count":
		return decodeQuantifier(n)
	case "function_def":
		body, err := decodeBody(n.Body)
		if err != nil {
			return nil, err
		}
		return &FunctionDef{Pos: n.pos(), Name: n.Name, Params: n.Params, Body: body}, nil
	case "import":
		return &Import{Pos: n.pos(), Module: n.Module, Names: n.Names, Alias: n.Alias}, nil
	case "signature":
		return &FunctionSignature{Pos: n.pos(), Name: n.Name, Params: n.Params}, nil
	default:
		// An expression at statement position is a filter clause.
		x, err := decodeExprNode(n)
		if err != nil {
			return nil, err
		}
		return &ExprStmt{Pos: n.pos(), X: x}, nil
	}
}

func decodeQuantifier(n *jsonNode) (*Quantifier, error) {
	body, err := decodeBody(n.Body)
	if err != nil {
		return nil, err
	}
	q := &Quantifier{Pos: n.pos(), Body: body, Max: -1}
	if n.Kind == "count" {
		q.Kind = QuantCount
		if n.Min != nil {
			q.Min = *n.Min
		}
		if n.Max != nil {
			q.Max = *n.Max
		}
	}
	return q, nil
}

func decodeBody(raws []json.RawMessage) ([]Stmt, error) {
	body := make([]Stmt, 0, len(raws))
	for i, raw := range raws {
		st, err := decodeStmt(raw)
		if err != nil {
			return nil, fmt.Errorf("body[%d]: %w", i, err)
		}
		body = append(body, st)
	}
	return body, nil
}

// decodeNode decodes a declaration target, which may be an identifier,
// a typed identifier, or a destructuring pattern.
func decodeNode(raw json.RawMessage) (Node, error) {
	n, err := decodeRaw(raw)
	if err != nil {
		return nil, err
	}
	return decodeExprNode(n)
}

func decodeExpr(raw json.RawMessage) (Expr, error) {
	n, err := decodeRaw(raw)
	if err != nil {
		return nil, err
	}
	return decodeExprNode(n)
}

func decodeExprNode(n *jsonNode) (Expr, error) {
	switch n.Kind {
	case "number":
		var v float64
		if err := json.Unmarshal(n.Value, &v); err != nil {
			return nil, fmt.Errorf("number value: %w", err)
		}
		return &NumberLit{Pos: n.pos(), Value: v}, nil
	case "string":
		var v string
		if err := json.Unmarshal(n.Value, &v); err != nil {
			return nil, fmt.Errorf("string value: %w", err)
		}
		lit := &StringLit{Pos: n.pos(), Value: v}
		switch n.Modifier {
		case "":
		case "raw":
			lit.Modifier = StringRaw
		case "regex":
			lit.Modifier = StringRegex
		case "format":
			lit.Modifier = StringFormat
		default:
			return nil, fmt.Errorf("unknown string modifier %q", n.Modifier)
		}
		return lit, nil
	case "bool":
		var v bool
		if err := json.Unmarshal(n.Value, &v); err != nil {
			return nil, fmt.Errorf("bool value: %w", err)
		}
		return &BoolLit{Pos: n.pos(), Value: v}, nil
	case "none":
		return &NoneLit{Pos: n.pos()}, nil
	case "array":
		elems := make([]Expr, 0, len(n.Elems))
		for _, raw := range n.Elems {
			el, err := decodeExpr(raw)
			if err != nil {
				return nil, err
			}
			elems = append(elems, el)
		}
		return &ArrayLit{Pos: n.pos(), Elems: elems}, nil
	case "object":
		entries := make([]ObjectEntry, 0, len(n.Entries))
		for _, e := range n.Entries {
			v, err := decodeExpr(e.Value)
			if err != nil {
				return nil, err
			}
			entries = append(entries, ObjectEntry{Key: e.Key, Value: v})
		}
		return &ObjectLit{Pos: n.pos(), Entries: entries}, nil
	case "wildcard":
		return &Wildcard{Pos: n.pos()}, nil
	case "ident":
		return &Identifier{Pos: n.pos(), Name: n.Name, Namespace: n.Namespace}, nil
	case "typed":
		return &TypedIdentifier{Pos: n.pos(), Name: n.Name, Type: n.Type}, nil
	case "member":
		x, err := decodeExpr(n.X)
		if err != nil {
			return nil, err
		}
		return &MemberAccess{Pos: n.pos(), X: x, Member: n.Member}, nil
	case "key":
		x, err := decodeExpr(n.X)
		if err != nil {
			return nil, err
		}
		k, err := decodeExpr(n.Key)
		if err != nil {
			return nil, err
		}
		return &KeyAccess{Pos: n.pos(), X: x, Key: k}, nil
	case "binary":
		left, err := decodeExpr(n.Left)
		if err != nil {
			return nil, err
		}
		right, err := decodeExpr(n.Right)
		if err != nil {
			return nil, err
		}
		return &BinaryExpr{Pos: n.pos(), Left: left, Op: BinaryOp(n.Op), Right: right}, nil
	case "unary":
		x, err := decodeExpr(n.X)
		if err != nil {
			return nil, err
		}
		return &UnaryExpr{Pos: n.pos(), Op: UnaryOp(n.Op), X: x}, nil
	case "ternary":
		then, err := decodeExpr(n.Then)
		if err != nil {
			return nil, err
		}
		cond, err := decodeExpr(n.Cond)
		if err != nil {
			return nil, err
		}
		other, err := decodeExpr(n.Else)
		if err != nil {
			return nil, err
		}
		return &TernaryExpr{Pos: n.pos(), Then: then, Cond: cond, Else: other}, nil
	case "call":
		call := &FunctionCall{Pos: n.pos(), Func: &Identifier{Pos: n.pos(), Name: n.Func}}
		for _, raw := range n.Args {
			a, err := decodeExpr(raw)
			if err != nil {
				return nil, err
			}
			call.Args = append(call.Args, a)
		}
		for _, kw := range n.Kwargs {
			v, err := decodeExpr(kw.Value)
			if err != nil {
				return nil, err
			}
			call.Kwargs = append(call.Kwargs, Kwarg{Name: kw.Name, Value: v})
		}
		return call, nil
	case "tool_pattern":
		tool, err := decodeExpr(n.Tool)
		if err != nil {
			return nil, err
		}
		sp := &SemanticPattern{Pos: n.pos(), Tool: tool}
		for _, raw := range n.Args {
			a, err := decodeExpr(raw)
			if err != nil {
				return nil, err
			}
			sp.Args = append(sp.Args, a)
		}
		return sp, nil
	case "value_ref":
		return &ValueReference{Pos: n.pos(), TypeName: n.Type}, nil
	case "some":
		c, err := decodeExpr(n.Candid)
		if err != nil {
			return nil, err
		}
		return &SomeExpr{Pos: n.pos(), Candidates: c}, nil
	case "comprehension":
		elem, err := decodeExpr(n.Elem)
		if err != nil {
			return nil, err
		}
		iter, err := decodeExpr(n.Iterable)
		if err != nil {
			return nil, err
		}
		lc := &ListComprehension{Pos: n.pos(), Elem: elem, Var: n.Var, Iterable: iter}
		if len(n.Cond) > 0 {
			cond, err := decodeExpr(n.Cond)
			if err != nil {
				return nil, err
			}
			lc.Cond = cond
		}
		return lc, nil
	case "forall", "count":
		return decodeQuantifier(n)
	default:
		return nil, fmt.Errorf("unknown node kind %q", n.Kind)
	}
}
