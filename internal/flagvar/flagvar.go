// Copyright 2015 The Vanadium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package flagvar registers flags directly from struct field tags, so
// cmd/rtsim can turn a kernel.Config into a flag.FlagSet without
// hand-written boilerplate for every tunable. A field tagged
//
//	HeapSize int `flag:"heap-size,262144,total heap arena size in bytes"`
//
// becomes a flag named heap-size, defaulting to 262144, with that
// usage string. The tag format is <name>,<default>,<usage>; a field
// left with an empty default gets its type's zero value.
package flagvar

import (
	"flag"
	"fmt"
	"reflect"
	"strconv"
	"time"
	"unsafe"
)

// consume reads up to sep (or the end of t), honoring \-escapes.
func consume(t string, sep rune) (value, remaining string) {
	val := make([]rune, 0, len(t))
	escaped := false
	for i, r := range t {
		if r == '\\' {
			escaped = true
			continue
		}
		if !escaped && r == sep {
			return string(val), t[i:]
		}
		escaped = false
		val = append(val, r)
	}
	return string(val), ""
}

func parseField(t, field string, allowEmpty, expectMore bool) (value, remaining string, err error) {
	defer func() {
		if err != nil {
			return
		}
		if !allowEmpty && len(value) == 0 {
			err = fmt.Errorf("empty field for %v", field)
			return
		}
		if expectMore {
			if len(remaining) == 0 {
				err = fmt.Errorf("more fields expected after %v", field)
				return
			}
			if remaining[0] == ',' {
				remaining = remaining[1:]
			}
			return
		}
		if len(remaining) > 0 {
			err = fmt.Errorf("spurious text after %v", field)
		}
	}()
	if len(t) == 0 {
		return
	}
	if t[0] == '\'' {
		value, remaining = consume(t[1:], '\'')
		if len(remaining) == 0 {
			err = fmt.Errorf("missing close quote (') for %v", field)
			return
		}
		remaining = remaining[1:]
		return
	}
	value, remaining = consume(t, ',')
	return
}

// ParseFlagTag splits a tag of the form <name>,<default>,<usage> into
// its three components. Fields may be quoted with ' to embed a comma.
func ParseFlagTag(t string) (name, value, usage string, err error) {
	if len(t) == 0 {
		err = fmt.Errorf("empty or missing tag")
		return
	}
	name, remaining, err := parseField(t, "<name>", false, true)
	if err != nil {
		return
	}
	value, remaining, err = parseField(remaining, "<default-value>", true, true)
	if err != nil {
		return
	}
	usage, _, err = parseField(remaining, "<usage>", false, false)
	return
}

func literalDefault(typeName, literal string) (value interface{}, err error) {
	if len(literal) == 0 {
		switch typeName {
		case "int":
			return int(0), nil
		case "int64", "time.Duration":
			return int64(0), nil
		case "bool":
			return false, nil
		case "string":
			return "", nil
		}
		return nil, nil
	}
	literal = ExpandEnv(literal)
	switch typeName {
	case "int":
		var v int64
		v, err = strconv.ParseInt(literal, 10, 64)
		value = int(v)
	case "int64":
		value, err = strconv.ParseInt(literal, 10, 64)
	case "bool":
		value, err = strconv.ParseBool(literal)
	case "string":
		value = literal
	case "time.Duration":
		value, err = time.ParseDuration(literal)
	}
	return
}

func createFlagsBasedOnValue(fs *flag.FlagSet, initialValue interface{}, fieldValue reflect.Value, name, description string) bool {
	switch dv := initialValue.(type) {
	case int:
		ptr := (*int)(unsafe.Pointer(fieldValue.Addr().Pointer()))
		fs.IntVar(ptr, name, dv, description)
	case int64:
		ptr := (*int64)(unsafe.Pointer(fieldValue.Addr().Pointer()))
		fs.Int64Var(ptr, name, dv, description)
	case bool:
		ptr := (*bool)(unsafe.Pointer(fieldValue.Addr().Pointer()))
		fs.BoolVar(ptr, name, dv, description)
	case string:
		ptr := (*string)(unsafe.Pointer(fieldValue.Addr().Pointer()))
		fs.StringVar(ptr, name, dv, description)
	case time.Duration:
		ptr := (*time.Duration)(unsafe.Pointer(fieldValue.Addr().Pointer()))
		fs.DurationVar(ptr, name, dv, description)
	default:
		return false
	}
	return true
}

// RegisterStruct walks structWithFlags (a pointer to a struct) and
// registers a flag for every field tagged `flag:"name,default,usage"`,
// recursing into anonymous embedded structs. It is the caller's
// responsibility to pass the same pointer later read back for the
// parsed values.
func RegisterStruct(fs *flag.FlagSet, structWithFlags interface{}) error {
	typ := reflect.TypeOf(structWithFlags)
	val := reflect.ValueOf(structWithFlags)
	if typ.Kind() != reflect.Ptr || typ.Elem().Kind() != reflect.Struct {
		return fmt.Errorf("%T is not a pointer to a struct", structWithFlags)
	}
	typ = typ.Elem()
	val = val.Elem()

	for i := 0; i < typ.NumField(); i++ {
		fieldType := typ.Field(i)
		tag, ok := fieldType.Tag.Lookup("flag")
		if !ok {
			if fieldType.Type.Kind() == reflect.Struct && fieldType.Anonymous {
				if err := RegisterStruct(fs, val.Field(i).Addr().Interface()); err != nil {
					return err
				}
			}
			continue
		}

		name, literal, usage, err := ParseFlagTag(tag)
		if err != nil {
			return fmt.Errorf("field %v: %v", fieldType.Name, err)
		}
		if fs.Lookup(name) != nil {
			return fmt.Errorf("flag %v already registered", name)
		}

		fieldValue := val.Field(i)
		initialValue, err := literalDefault(fieldType.Type.String(), literal)
		if err != nil {
			return fmt.Errorf("field %v flag %v: %v", fieldType.Name, name, err)
		}
		if !createFlagsBasedOnValue(fs, initialValue, fieldValue, name, usage) {
			return fmt.Errorf("field %v flag %v: unsupported type %v", fieldType.Name, name, fieldType.Type)
		}
	}
	return nil
}
