// Package policy runs an operator provided Lua script as an extra check on
// registrations.
//
// The script must define a global function `check(candidate)`. The
// candidate table has the normalized `username` plus facts about the
// password (`password_length`, `has_upper`, `has_lower`, `has_digit`,
// `has_symbol`); the password itself never reaches Lua. The function
// returns either a boolean or a table like
// `{allow = false, field = "username", reason = "is reserved"}`.
package policy

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"
	"unicode"

	"github.com/andrebq/sealgate/auth"
	"github.com/yuin/gluamapper"
	lua "github.com/yuin/gopher-lua"
	"github.com/yuin/gopher-lua/parse"
)

type (
	Script struct {
		name    string
		proto   *lua.FunctionProto
		timeout time.Duration
	}

	Verdict struct {
		Allow  bool
		Field  string
		Reason string
	}
)

var (
	errMissingCheck = errors.New("policy script must define a global check function")
)

func Load(file string) (*Script, error) {
	src, err := os.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("unable to read policy script %v, cause %w", file, err)
	}
	return Compile(file, string(src))
}

func Compile(name string, src string) (*Script, error) {
	chunk, err := parse.Parse(strings.NewReader(src), name)
	if err != nil {
		return nil, fmt.Errorf("unable to parse policy script %v, cause %w", name, err)
	}
	proto, err := lua.Compile(chunk, name)
	if err != nil {
		return nil, fmt.Errorf("unable to compile policy script %v, cause %w", name, err)
	}
	return &Script{name: name, proto: proto, timeout: time.Second}, nil
}

// Func adapts the script to the registration hook used by auth.Program.
func (s *Script) Func() auth.PolicyFn {
	return s.Check
}

// Check runs the script against one candidate. A script that rejects the
// candidate yields an auth.ValidationError, a broken script yields a plain
// error so registration fails closed.
func (s *Script) Check(ctx context.Context, username string, passwd auth.PlainText) error {
	v, err := s.Evaluate(ctx, username, passwd)
	if err != nil {
		return err
	}
	if v.Allow {
		return nil
	}
	if v.Field == "" {
		v.Field = "username"
	}
	if v.Reason == "" {
		v.Reason = "was rejected by the registration policy"
	}
	return auth.ValidationError{Field: v.Field, Reason: v.Reason}
}

func (s *Script) Evaluate(ctx context.Context, username string, passwd auth.PlainText) (Verdict, error) {
	L := lua.NewState(lua.Options{SkipOpenLibs: true})
	defer L.Close()
	injectPolicyLibs(L)

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	L.SetContext(ctx)

	L.Push(L.NewFunctionFromProto(s.proto))
	if err := L.PCall(0, lua.MultRet, nil); err != nil {
		return Verdict{}, fmt.Errorf("unable to load policy script %v, cause %w", s.name, err)
	}
	fn := L.GetGlobal("check")
	if fn.Type() != lua.LTFunction {
		return Verdict{}, errMissingCheck
	}
	err := L.CallByParam(lua.P{Fn: fn, NRet: 1, Protect: true}, candidateTable(L, username, passwd))
	if err != nil {
		return Verdict{}, fmt.Errorf("policy script %v failed, cause %w", s.name, err)
	}
	ret := L.Get(-1)
	L.Pop(1)
	switch ret := ret.(type) {
	case lua.LBool:
		return Verdict{Allow: bool(ret)}, nil
	case *lua.LTable:
		var v Verdict
		err = gluamapper.Map(ret, &v)
		if err != nil {
			return Verdict{}, fmt.Errorf("unable to decode verdict from policy script %v, cause %w", s.name, err)
		}
		return v, nil
	}
	return Verdict{}, fmt.Errorf("policy script %v returned %v, expecting a boolean or a table", s.name, ret.Type())
}

func candidateTable(L *lua.LState, username string, passwd auth.PlainText) *lua.LTable {
	var upper, lower, digit, symbol bool
	for _, r := range string(passwd) {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		default:
			symbol = true
		}
	}
	t := L.NewTable()
	L.SetField(t, "username", lua.LString(username))
	L.SetField(t, "password_length", lua.LNumber(len(passwd)))
	L.SetField(t, "has_upper", lua.LBool(upper))
	L.SetField(t, "has_lower", lua.LBool(lower))
	L.SetField(t, "has_digit", lua.LBool(digit))
	L.SetField(t, "has_symbol", lua.LBool(symbol))
	return t
}
