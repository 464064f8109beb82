package asm

import (
	"tlog.app/go/loc"
	"tlog.app/go/tlog/tlwire"

	"github.com/slowlang/backend/compiler/asm/x86"
	"github.com/slowlang/backend/compiler/intern"
)

type (
	Word = x86.Word

	// Register is either a machine register or a virtual one awaiting allocation.
	// The zero value is no register.
	Register struct {
		kind regKind
		mach x86.Reg
		virt intern.Ident
	}

	regKind uint8

	OperandSize uint8

	// Argument is an instruction operand.
	// One of Immediate, Address, Label, Register, StackSlot, Indirect.
	Argument interface {
		argument()
	}

	Immediate Word
	Address   intern.Ident
	Label     intern.Ident

	// StackSlot is a named frame slot which offset is not known yet.
	StackSlot intern.Ident

	// Indirect is [base + index * scale + disp].
	// Absent Base or Index are zero Registers.
	Indirect struct {
		Size OperandSize

		Base  Register
		Index Register
		Scale uint32

		Disp    int32
		HasDisp bool
	}

	Instruction struct {
		Mnemonic x86.Mnemonic
		Args     []Argument
	}
)

const (
	regNone regKind = iota
	regMachine
	regVirtual
)

const (
	SizeNone OperandSize = iota
	Byte
	Word16
	DWord
	QWord
)

func Machine(r x86.Reg) Register {
	return Register{kind: regMachine, mach: r}
}

func Virtual(name intern.Ident) Register {
	return Register{kind: regVirtual, virt: name}
}

func (r Register) IsZero() bool    { return r.kind == regNone }
func (r Register) IsMachine() bool { return r.kind == regMachine }
func (r Register) IsVirtual() bool { return r.kind == regVirtual }

// Machine returns the concrete register.
// Calling it on a virtual register means allocation did not run or missed it,
// which is reported as an InternalError.
func (r Register) Machine() (x86.Reg, error) {
	if r.kind == regMachine {
		return r.mach, nil
	}

	return 0, &InternalError{Err: ErrVirtualRegister, Reg: r, From: loc.Caller(1)}
}

func (r Register) VirtualName() (intern.Ident, bool) {
	return r.virt, r.kind == regVirtual
}

func (r Register) TlogAppend(b []byte) []byte {
	var e tlwire.Encoder

	switch r.kind {
	case regMachine:
		return e.AppendString(b, r.mach.String())
	case regVirtual:
		return e.AppendFormat(b, "%%%d", int(r.virt))
	default:
		return e.AppendNil(b)
	}
}

func Mem(size OperandSize, base Register) Indirect {
	return Indirect{Size: size, Base: base}
}

func (x Indirect) WithIndex(index Register, scale uint32) Indirect {
	x.Index = index
	x.Scale = scale

	return x
}

func (x Indirect) WithDisp(disp int32) Indirect {
	x.Disp = disp
	x.HasDisp = true

	return x
}

func (s OperandSize) String() string {
	switch s {
	case SizeNone:
		return ""
	case Byte:
		return "byte"
	case Word16:
		return "word"
	case DWord:
		return "dword"
	case QWord:
		return "qword"
	default:
		return "size?"
	}
}

func LookupSize(name string) (OperandSize, bool) {
	switch name {
	case "", "none":
		return SizeNone, true
	case "byte":
		return Byte, true
	case "word":
		return Word16, true
	case "dword":
		return DWord, true
	case "qword":
		return QWord, true
	}

	return SizeNone, false
}

func NewInstruction(m x86.Mnemonic, args ...Argument) Instruction {
	return Instruction{Mnemonic: m, Args: args}
}

// Class refines the mnemonic class by operands:
// mov to memory writes no register so all its operands are inputs.
func (i Instruction) Class() x86.Class {
	if i.Mnemonic == x86.MOV && len(i.Args) != 0 {
		if _, ok := i.Args[0].(Indirect); ok {
			return x86.InputsOnly
		}
	}

	return x86.ClassOf(i.Mnemonic)
}

// Inputs returns registers read by the instruction in operand order.
// Addressing registers of an indirect operand are always read,
// even if that operand is the destination.
func (i Instruction) Inputs() []Register {
	if len(i.Args) == 0 {
		return nil
	}

	var regs []Register

	if i.Class() == x86.Default {
		if x, ok := i.Args[0].(Indirect); ok {
			regs = x.appendRegs(regs)
		}

		return appendRegs(regs, i.Args[1:])
	}

	return appendRegs(regs, i.Args)
}

// Outputs returns registers written by the instruction.
func (i Instruction) Outputs() []Register {
	if len(i.Args) == 0 || i.Class() == x86.InputsOnly {
		return nil
	}

	if r, ok := i.Args[0].(Register); ok && !r.IsZero() {
		return []Register{r}
	}

	return nil
}

func appendRegs(regs []Register, args []Argument) []Register {
	for _, a := range args {
		switch a := a.(type) {
		case Register:
			if !a.IsZero() {
				regs = append(regs, a)
			}
		case Indirect:
			regs = a.appendRegs(regs)
		}
	}

	return regs
}

func (x Indirect) appendRegs(regs []Register) []Register {
	if !x.Base.IsZero() {
		regs = append(regs, x.Base)
	}

	if !x.Index.IsZero() {
		regs = append(regs, x.Index)
	}

	return regs
}

func (Immediate) argument() {}
func (Address) argument()   {}
func (Label) argument()     {}
func (Register) argument()  {}
func (StackSlot) argument() {}
func (Indirect) argument()  {}
