package main

import (
	"encoding/binary"
	"fmt"
	"strings"
)

const classMagic = 0xCAFEBABE

const accInterface = 0x0200

// Constant pool tags.
const (
	tagUtf8               = 1
	tagInteger            = 3
	tagFloat              = 4
	tagLong               = 5
	tagDouble             = 6
	tagClass              = 7
	tagString             = 8
	tagFieldref           = 9
	tagMethodref          = 10
	tagInterfaceMethodref = 11
	tagNameAndType        = 12
	tagMethodHandle       = 15
	tagMethodType         = 16
	tagDynamic            = 17
	tagInvokeDynamic      = 18
	tagModule             = 19
	tagPackage            = 20
)

// Opcodes that need special handling while walking a method body.
const (
	opIinc            = 0x84
	opTableswitch     = 0xaa
	opLookupswitch    = 0xab
	opInvokevirtual   = 0xb6
	opInvokespecial   = 0xb7
	opInvokestatic    = 0xb8
	opInvokeinterface = 0xb9
	opInvokedynamic   = 0xba
	opWide            = 0xc4
)

// operandLengths holds the fixed operand size of every opcode, -1 for
// opcodes that are undefined or variable-length.
var operandLengths = buildOperandLengths()

func buildOperandLengths() [256]int8 {
	var t [256]int8
	for i := range t {
		t[i] = -1
	}
	set := func(n int8, from, to byte) {
		for op := int(from); op <= int(to); op++ {
			t[op] = n
		}
	}
	set(0, 0x00, 0x0f) // nop .. dconst_1
	set(1, 0x10, 0x10) // bipush
	set(2, 0x11, 0x11) // sipush
	set(1, 0x12, 0x12) // ldc
	set(2, 0x13, 0x14) // ldc_w, ldc2_w
	set(1, 0x15, 0x19) // iload .. aload
	set(0, 0x1a, 0x35) // xload_n, xaload
	set(1, 0x36, 0x3a) // istore .. astore
	set(0, 0x3b, 0x83) // xstore_n, xastore, stack ops, arithmetic
	set(2, opIinc, opIinc)
	set(0, 0x85, 0x98) // conversions, compares
	set(2, 0x99, 0xa8) // if*, goto, jsr
	set(1, 0xa9, 0xa9) // ret
	set(0, 0xac, 0xb1) // returns
	set(2, 0xb2, 0xb8) // field access, invokevirtual/special/static
	set(4, 0xb9, 0xba) // invokeinterface, invokedynamic
	set(2, 0xbb, 0xbb) // new
	set(1, 0xbc, 0xbc) // newarray
	set(2, 0xbd, 0xbd) // anewarray
	set(0, 0xbe, 0xbf) // arraylength, athrow
	set(2, 0xc0, 0xc1) // checkcast, instanceof
	set(0, 0xc2, 0xc3) // monitorenter, monitorexit
	set(3, 0xc5, 0xc5) // multianewarray
	set(2, 0xc6, 0xc7) // ifnull, ifnonnull
	set(4, 0xc8, 0xc9) // goto_w, jsr_w
	set(0, 0xca, 0xca) // breakpoint
	set(0, 0xfe, 0xff) // impdep1, impdep2
	return t
}

// ClassFormatError reports a malformed class file.
type ClassFormatError struct {
	Source string
	Msg    string
}

func (e *ClassFormatError) Error() string {
	if e.Source == "" {
		return "invalid class file: " + e.Msg
	}
	return fmt.Sprintf("invalid class file %s: %s", e.Source, e.Msg)
}

func formatErr(format string, args ...any) error {
	return &ClassFormatError{Msg: fmt.Sprintf(format, args...)}
}

// byteReader is a big-endian cursor. The first overrun is sticky in err.
type byteReader struct {
	data []byte
	pos  int
	err  error
}

func (r *byteReader) take(n int) []byte {
	if r.err != nil {
		return nil
	}
	if n < 0 || r.pos+n > len(r.data) {
		r.err = formatErr("truncated at offset %d", r.pos)
		return nil
	}
	b := r.data[r.pos : r.pos+n]
	r.pos += n
	return b
}

func (r *byteReader) u1() uint8 {
	b := r.take(1)
	if b == nil {
		return 0
	}
	return b[0]
}

func (r *byteReader) u2() uint16 {
	b := r.take(2)
	if b == nil {
		return 0
	}
	return binary.BigEndian.Uint16(b)
}

func (r *byteReader) u4() uint32 {
	b := r.take(4)
	if b == nil {
		return 0
	}
	return binary.BigEndian.Uint32(b)
}

type cpEntry struct {
	tag  uint8
	a, b uint16
	utf8 string
}

type constantPool []cpEntry

func (p constantPool) entry(idx uint16, tags ...uint8) (cpEntry, error) {
	if idx == 0 || int(idx) >= len(p) {
		return cpEntry{}, formatErr("constant pool index %d out of range", idx)
	}
	e := p[idx]
	for _, t := range tags {
		if e.tag == t {
			return e, nil
		}
	}
	return cpEntry{}, formatErr("constant pool index %d has tag %d", idx, e.tag)
}

func (p constantPool) utf8(idx uint16) (string, error) {
	e, err := p.entry(idx, tagUtf8)
	if err != nil {
		return "", err
	}
	return e.utf8, nil
}

// className returns the internal (slash separated) name of a Class entry.
func (p constantPool) className(idx uint16) (string, error) {
	e, err := p.entry(idx, tagClass)
	if err != nil {
		return "", err
	}
	return p.utf8(e.a)
}

func (p constantPool) nameAndType(idx uint16) (string, error) {
	e, err := p.entry(idx, tagNameAndType)
	if err != nil {
		return "", err
	}
	name, err := p.utf8(e.a)
	if err != nil {
		return "", err
	}
	desc, err := p.utf8(e.b)
	if err != nil {
		return "", err
	}
	return name + desc, nil
}

// methodRef resolves a Methodref/InterfaceMethodref into a call site.
// Array owners (clone() on arrays) have no class to couple to.
func (p constantPool) methodRef(idx uint16) (CallSite, error) {
	e, err := p.entry(idx, tagMethodref, tagInterfaceMethodref)
	if err != nil {
		return CallSite{}, err
	}
	owner, err := p.className(e.a)
	if err != nil {
		return CallSite{}, err
	}
	sig, err := p.nameAndType(e.b)
	if err != nil {
		return CallSite{}, err
	}
	if strings.HasPrefix(owner, "[") {
		return CallSite{CalleeMethod: sig}, nil
	}
	return CallSite{CalleeClass: binaryToDotted(owner), CalleeMethod: sig}, nil
}

func (p constantPool) invokeDynamic(idx uint16) (CallSite, error) {
	e, err := p.entry(idx, tagInvokeDynamic)
	if err != nil {
		return CallSite{}, err
	}
	sig, err := p.nameAndType(e.b)
	if err != nil {
		return CallSite{}, err
	}
	return CallSite{CalleeMethod: sig}, nil
}

func binaryToDotted(name string) string {
	return strings.ReplaceAll(name, "/", ".")
}

// parseClassFile decodes the structural parts of a JVM class file.
func parseClassFile(data []byte) (*ClassDescriptor, error) {
	r := &byteReader{data: data}
	if magic := r.u4(); magic != classMagic {
		if r.err != nil {
			return nil, r.err
		}
		return nil, formatErr("bad magic 0x%08X", magic)
	}
	r.take(4) // minor, major

	pool, err := readConstantPool(r)
	if err != nil {
		return nil, err
	}

	access := r.u2()
	thisIdx := r.u2()
	superIdx := r.u2()
	if r.err != nil {
		return nil, r.err
	}

	name, err := pool.className(thisIdx)
	if err != nil {
		return nil, err
	}
	cls := &ClassDescriptor{
		Name:        binaryToDotted(name),
		IsInterface: access&accInterface != 0,
	}
	if superIdx != 0 {
		super, err := pool.className(superIdx)
		if err != nil {
			return nil, err
		}
		cls.SuperClass = binaryToDotted(super)
	}

	n := int(r.u2())
	for i := 0; i < n && r.err == nil; i++ {
		iface, err := pool.className(r.u2())
		if err != nil {
			return nil, err
		}
		cls.Interfaces = append(cls.Interfaces, binaryToDotted(iface))
	}

	// fields
	n = int(r.u2())
	for i := 0; i < n && r.err == nil; i++ {
		r.take(6)
		skipAttributes(r)
	}

	n = int(r.u2())
	for i := 0; i < n && r.err == nil; i++ {
		m, err := readMethod(r, pool)
		if err != nil {
			return nil, err
		}
		cls.Methods = append(cls.Methods, m)
	}

	if r.err != nil {
		return nil, r.err
	}
	return cls, nil
}

func readConstantPool(r *byteReader) (constantPool, error) {
	count := int(r.u2())
	if r.err != nil {
		return nil, r.err
	}
	pool := make(constantPool, count)
	for i := 1; i < count; i++ {
		e := cpEntry{tag: r.u1()}
		switch e.tag {
		case tagUtf8:
			e.utf8 = string(r.take(int(r.u2())))
		case tagInteger, tagFloat:
			r.take(4)
		case tagLong, tagDouble:
			// eight-byte constants occupy two slots
			r.take(8)
			pool[i] = e
			i++
			continue
		case tagClass, tagString, tagMethodType, tagModule, tagPackage:
			e.a = r.u2()
		case tagFieldref, tagMethodref, tagInterfaceMethodref, tagNameAndType, tagDynamic, tagInvokeDynamic:
			e.a = r.u2()
			e.b = r.u2()
		case tagMethodHandle:
			r.take(1)
			e.a = r.u2()
		default:
			if r.err != nil {
				return nil, r.err
			}
			return nil, formatErr("unknown constant pool tag %d at index %d", e.tag, i)
		}
		if r.err != nil {
			return nil, r.err
		}
		pool[i] = e
	}
	return pool, nil
}

func skipAttributes(r *byteReader) {
	n := int(r.u2())
	for i := 0; i < n && r.err == nil; i++ {
		r.take(2)
		r.take(int(r.u4()))
	}
}

func readMethod(r *byteReader, pool constantPool) (MethodDescriptor, error) {
	r.take(2) // access flags
	nameIdx := r.u2()
	descIdx := r.u2()
	if r.err != nil {
		return MethodDescriptor{}, r.err
	}
	name, err := pool.utf8(nameIdx)
	if err != nil {
		return MethodDescriptor{}, err
	}
	desc, err := pool.utf8(descIdx)
	if err != nil {
		return MethodDescriptor{}, err
	}
	m := MethodDescriptor{Name: name, Descriptor: desc}

	n := int(r.u2())
	for i := 0; i < n && r.err == nil; i++ {
		attrName, err := pool.utf8(r.u2())
		if err != nil {
			return MethodDescriptor{}, err
		}
		body := r.take(int(r.u4()))
		if r.err != nil || attrName != "Code" {
			continue
		}
		code, err := codeBytes(body)
		if err != nil {
			return MethodDescriptor{}, err
		}
		calls, err := scanCode(code, pool)
		if err != nil {
			return MethodDescriptor{}, fmt.Errorf("method %s%s: %w", name, desc, err)
		}
		m.Calls = append(m.Calls, calls...)
	}
	return m, r.err
}

// codeBytes extracts the instruction stream from a Code attribute body.
func codeBytes(body []byte) ([]byte, error) {
	r := &byteReader{data: body}
	r.take(4) // max_stack, max_locals
	code := r.take(int(r.u4()))
	return code, r.err
}

// scanCode walks the instruction stream and collects invocation call sites.
func scanCode(code []byte, pool constantPool) ([]CallSite, error) {
	var calls []CallSite
	for pc := 0; pc < len(code); {
		n, err := instructionLength(code, pc)
		if err != nil {
			return nil, err
		}
		if pc+n > len(code) {
			return nil, formatErr("instruction at pc %d overruns code", pc)
		}

		switch code[pc] {
		case opInvokevirtual, opInvokespecial, opInvokestatic, opInvokeinterface:
			site, err := pool.methodRef(binary.BigEndian.Uint16(code[pc+1:]))
			if err != nil {
				return nil, err
			}
			calls = append(calls, site)
		case opInvokedynamic:
			site, err := pool.invokeDynamic(binary.BigEndian.Uint16(code[pc+1:]))
			if err != nil {
				return nil, err
			}
			calls = append(calls, site)
		}
		pc += n
	}
	return calls, nil
}

// instructionLength returns the size in bytes of the instruction at pc.
func instructionLength(code []byte, pc int) (int, error) {
	op := code[pc]
	switch op {
	case opTableswitch, opLookupswitch:
		// operands start on the next 4-byte boundary
		p := pc + 1 + (4-(pc+1)%4)%4
		header := 12
		if op == opLookupswitch {
			header = 8
		}
		if p+header > len(code) {
			return 0, formatErr("truncated switch at pc %d", pc)
		}
		if op == opLookupswitch {
			npairs := int64(int32(binary.BigEndian.Uint32(code[p+4:])))
			if npairs < 0 {
				return 0, formatErr("negative lookupswitch size at pc %d", pc)
			}
			return checkedLength(code, pc, int64(p+8)+8*npairs)
		}
		low := int64(int32(binary.BigEndian.Uint32(code[p+4:])))
		high := int64(int32(binary.BigEndian.Uint32(code[p+8:])))
		if high < low {
			return 0, formatErr("tableswitch high < low at pc %d", pc)
		}
		return checkedLength(code, pc, int64(p+12)+4*(high-low+1))
	case opWide:
		if pc+1 >= len(code) {
			return 0, formatErr("truncated wide at pc %d", pc)
		}
		if code[pc+1] == opIinc {
			return 6, nil
		}
		return 4, nil
	}
	n := operandLengths[op]
	if n < 0 {
		return 0, formatErr("unknown opcode 0x%02x at pc %d", op, pc)
	}
	return 1 + int(n), nil
}

func checkedLength(code []byte, pc int, end int64) (int, error) {
	if end > int64(len(code)) {
		return 0, formatErr("instruction at pc %d overruns code", pc)
	}
	return int(end) - pc, nil
}
