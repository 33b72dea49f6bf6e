package main

import (
	"archive/zip"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// This file assembles minimal but valid class files for tests.

type poolBuilder struct {
	buf  []byte
	next uint16
	idx  map[string]uint16
}

func newPoolBuilder() *poolBuilder {
	return &poolBuilder{next: 1, idx: make(map[string]uint16)}
}

func (p *poolBuilder) add(key string, slots uint16, entry []byte) uint16 {
	if i, ok := p.idx[key]; ok {
		return i
	}
	i := p.next
	p.idx[key] = i
	p.next += slots
	p.buf = append(p.buf, entry...)
	return i
}

func (p *poolBuilder) utf8(s string) uint16 {
	e := []byte{tagUtf8}
	e = binary.BigEndian.AppendUint16(e, uint16(len(s)))
	return p.add("u:"+s, 1, append(e, s...))
}

func (p *poolBuilder) class(dotted string) uint16 {
	name := p.utf8(strings.ReplaceAll(dotted, ".", "/"))
	return p.add("c:"+dotted, 1, binary.BigEndian.AppendUint16([]byte{tagClass}, name))
}

func (p *poolBuilder) nameAndType(name, desc string) uint16 {
	n, d := p.utf8(name), p.utf8(desc)
	e := binary.BigEndian.AppendUint16([]byte{tagNameAndType}, n)
	return p.add("nt:"+name+desc, 1, binary.BigEndian.AppendUint16(e, d))
}

func (p *poolBuilder) methodRef(owner, name, desc string, iface bool) uint16 {
	tag := byte(tagMethodref)
	if iface {
		tag = tagInterfaceMethodref
	}
	c, nt := p.class(owner), p.nameAndType(name, desc)
	e := binary.BigEndian.AppendUint16([]byte{tag}, c)
	return p.add(fmt.Sprintf("m:%d:%s.%s%s", tag, owner, name, desc), 1, binary.BigEndian.AppendUint16(e, nt))
}

func (p *poolBuilder) invokeDynamic(name, desc string) uint16 {
	nt := p.nameAndType(name, desc)
	e := binary.BigEndian.AppendUint16([]byte{tagInvokeDynamic}, 0)
	return p.add("id:"+name+desc, 1, binary.BigEndian.AppendUint16(e, nt))
}

func (p *poolBuilder) long(v int64) uint16 {
	e := binary.BigEndian.AppendUint64([]byte{tagLong}, uint64(v))
	return p.add("l:"+strconv.FormatInt(v, 10), 2, e)
}

// insn appends one instruction to code, registering constants in p.
type insn func(p *poolBuilder, code []byte) []byte

func invoke(op byte, owner, name, desc string) insn {
	return func(p *poolBuilder, code []byte) []byte {
		idx := p.methodRef(owner, name, desc, op == opInvokeinterface)
		code = binary.BigEndian.AppendUint16(append(code, op), idx)
		if op == opInvokeinterface {
			code = append(code, 1, 0)
		}
		return code
	}
}

func indy(name, desc string) insn {
	return func(p *poolBuilder, code []byte) []byte {
		idx := p.invokeDynamic(name, desc)
		return append(binary.BigEndian.AppendUint16(append(code, opInvokedynamic), idx), 0, 0)
	}
}

func ldcLong(v int64) insn {
	return func(p *poolBuilder, code []byte) []byte {
		return binary.BigEndian.AppendUint16(append(code, 0x14), p.long(v))
	}
}

func raw(b ...byte) insn {
	return func(_ *poolBuilder, code []byte) []byte {
		return append(code, b...)
	}
}

func tableswitch(low, high int32) insn {
	return func(_ *poolBuilder, code []byte) []byte {
		pc := len(code)
		code = append(code, opTableswitch)
		for i := 0; i < (4-(pc+1)%4)%4; i++ {
			code = append(code, 0)
		}
		code = binary.BigEndian.AppendUint32(code, 0) // default
		code = binary.BigEndian.AppendUint32(code, uint32(low))
		code = binary.BigEndian.AppendUint32(code, uint32(high))
		for i := low; i <= high; i++ {
			code = binary.BigEndian.AppendUint32(code, 0)
		}
		return code
	}
}

func lookupswitch(npairs int) insn {
	return func(_ *poolBuilder, code []byte) []byte {
		pc := len(code)
		code = append(code, opLookupswitch)
		for i := 0; i < (4-(pc+1)%4)%4; i++ {
			code = append(code, 0)
		}
		code = binary.BigEndian.AppendUint32(code, 0)
		code = binary.BigEndian.AppendUint32(code, uint32(npairs))
		for i := 0; i < npairs; i++ {
			code = binary.BigEndian.AppendUint32(code, uint32(i))
			code = binary.BigEndian.AppendUint32(code, 0)
		}
		return code
	}
}

type testMethod struct {
	name  string
	desc  string
	insns []insn
}

type testClass struct {
	name       string
	super      string
	interfaces []string
	iface      bool
	methods    []testMethod
}

// assemble returns the class file bytes for c. Every method body ends with
// a return instruction.
func assemble(c testClass) []byte {
	p := newPoolBuilder()
	this := p.class(c.name)
	var super uint16
	if c.super != "" {
		super = p.class(c.super)
	}
	var ifaces []uint16
	for _, i := range c.interfaces {
		ifaces = append(ifaces, p.class(i))
	}

	fieldName, fieldDesc, synthetic := p.utf8("counter"), p.utf8("I"), p.utf8("Synthetic")
	codeAttr := p.utf8("Code")

	type builtMethod struct {
		name, desc uint16
		code       []byte
	}
	var methods []builtMethod
	for _, m := range c.methods {
		var code []byte
		for _, in := range m.insns {
			code = in(p, code)
		}
		code = append(code, 0xb1)
		methods = append(methods, builtMethod{p.utf8(m.name), p.utf8(m.desc), code})
	}

	u2 := binary.BigEndian.AppendUint16
	u4 := binary.BigEndian.AppendUint32

	b := u4(nil, classMagic)
	b = u2(b, 0)
	b = u2(b, 52)
	b = u2(b, p.next)
	b = append(b, p.buf...)

	access := uint16(0x0021)
	if c.iface {
		access = 0x0601
	}
	b = u2(b, access)
	b = u2(b, this)
	b = u2(b, super)
	b = u2(b, uint16(len(ifaces)))
	for _, i := range ifaces {
		b = u2(b, i)
	}

	// one field with a zero-length attribute
	b = u2(b, 1)
	b = u2(b, 0x0002)
	b = u2(b, fieldName)
	b = u2(b, fieldDesc)
	b = u2(b, 1)
	b = u2(b, synthetic)
	b = u4(b, 0)

	b = u2(b, uint16(len(methods)))
	for _, m := range methods {
		b = u2(b, 0x0001)
		b = u2(b, m.name)
		b = u2(b, m.desc)
		b = u2(b, 1)
		b = u2(b, codeAttr)
		b = u4(b, uint32(12+len(m.code)))
		b = u2(b, 4) // max_stack
		b = u2(b, 4) // max_locals
		b = u4(b, uint32(len(m.code)))
		b = append(b, m.code...)
		b = u2(b, 0) // exception table
		b = u2(b, 0) // attributes
	}

	return u2(b, 0) // class attributes
}

// writeClassDir writes each class under root using its package path.
func writeClassDir(t *testing.T, root string, classes ...testClass) {
	t.Helper()
	for _, c := range classes {
		p := filepath.Join(root, filepath.FromSlash(strings.ReplaceAll(c.name, ".", "/")+".class"))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, assemble(c), 0o644))
	}
}

// writeJar writes a jar with the given entries; values are raw file contents.
func writeJar(t *testing.T, path string, names []string, contents [][]byte) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	zw := zip.NewWriter(f)
	for i, n := range names {
		w, err := zw.Create(n)
		require.NoError(t, err)
		_, err = w.Write(contents[i])
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())
}

// scenarioClasses is A extends B, B extends Object, C calls A.m().
func scenarioClasses(pkg string) []testClass {
	return []testClass{
		{name: pkg + "A", super: pkg + "B", methods: []testMethod{{name: "m", desc: "()V"}}},
		{name: pkg + "B", super: "java.lang.Object"},
		{name: pkg + "C", super: "java.lang.Object", methods: []testMethod{{
			name: "run", desc: "()V",
			insns: []insn{
				raw(0x2a), // aload_0
				invoke(opInvokevirtual, pkg+"A", "m", "()V"),
			},
		}}},
	}
}
