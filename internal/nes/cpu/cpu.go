// Package cpu implements the NES's Ricoh 2A03 CPU core: a 6502 variant
// missing binary-coded decimal but otherwise instruction- and
// cycle-compatible, including the handful of undocumented opcodes
// software is known to rely on.
package cpu

// Bus is the narrow memory/interrupt surface the CPU needs. Kept as a
// structural interface (not an import of package bus) so bus is the
// only place CPU, PPU, APU and cart get wired together.
type Bus interface {
	Read(addr uint16) uint8
	Write(addr uint16, v uint8)
}

// AddressingMode selects how an instruction's operand address is formed.
type AddressingMode int

const (
	Implied AddressingMode = iota
	Accumulator
	Immediate
	ZeroPage
	ZeroPageX
	ZeroPageY
	Relative
	Absolute
	AbsoluteX
	AbsoluteY
	Indirect
	IndexedIndirect // (zp,X)
	IndirectIndexed // (zp),Y
)

const (
	stackBase = 0x0100

	nFlagMask  = 0x80
	vFlagMask  = 0x40
	unusedMask = 0x20
	bFlagMask  = 0x10
	dFlagMask  = 0x08
	iFlagMask  = 0x04
	zFlagMask  = 0x02
	cFlagMask  = 0x01

	zeroPageMask = 0xFF
	pageMask     = 0xFF00

	nmiVector   = 0xFFFA
	resetVector = 0xFFFC
	irqVector   = 0xFFFE
)

// instruction describes one opcode's operand shape and base cycle cost;
// Step adds the extra cycle for page-crossing reads (readPenalty) and
// execute returns the extra cycles of a taken branch.
type instruction struct {
	name   string
	bytes  uint8
	cycles uint8
	mode   AddressingMode
	rmw    bool // instruction reads-modifies-writes its operand (double-write cycle)
}

// CPU is the 6502-family core. Every memory access it makes goes
// through read/write, which forward straight to bus.Read/bus.Write —
// the bus treats each such call as one real system cycle (spec's
// read_cycle/write_cycle), advancing the PPU, cart, and APU inline
// rather than being caught up in a batch after the fact. Step still
// executes one whole instruction per call and reports its total cycle
// count, but every cycle that count is made of has already been lived
// by the rest of the system by the time Step returns.
type CPU struct {
	A, X, Y, SP uint8
	PC          uint16

	C, Z, I, D, B, V, N bool

	bus Bus

	cycles uint64
	issued int

	instructions [256]instruction

	nmiPrev    bool
	nmiPending bool
	irqLines   uint8
}

// read and write are the only places the CPU touches the bus. Besides
// forwarding to bus.Read/Write (each call is one real system cycle),
// they count against issued so Step's padding loop can tell how many
// of an instruction's table-dictated cycles already happened as real
// bus accesses versus still need a dummy one.
func (cpu *CPU) read(addr uint16) uint8 {
	cpu.issued++
	return cpu.bus.Read(addr)
}

func (cpu *CPU) write(addr uint16, v uint8) {
	cpu.issued++
	cpu.bus.Write(addr, v)
}

// IRQ source bits ORed onto irqLines. Each source asserts/deasserts its
// own bit independently so one source clearing its line doesn't mask
// another still pending (e.g. the APU frame IRQ and a mapper IRQ can be
// pending at once; clearing the frame IRQ must not clear the mapper one).
const (
	IRQFrame uint8 = 1 << iota
	IRQDMC
	IRQMapper
)

// New constructs a CPU wired to bus. Call Reset before stepping.
func New(bus Bus) *CPU {
	cpu := &CPU{bus: bus, SP: 0xFD}
	cpu.initInstructions()
	return cpu
}

// Reset performs the 6502's 7-cycle reset sequence: 5 dummy bus reads
// at the pre-reset PC followed by the two reset-vector reads.
func (cpu *CPU) Reset() {
	cpu.A, cpu.X, cpu.Y = 0, 0, 0
	cpu.SP = 0xFD
	cpu.C, cpu.Z, cpu.D, cpu.V, cpu.N = false, false, false, false, false
	cpu.I = true
	cpu.B = false // P reads 0x24 after reset (I and U set, B clear)

	for i := 0; i < 5; i++ {
		cpu.read(cpu.PC)
		cpu.cycles++
	}
	low := uint16(cpu.read(resetVector))
	high := uint16(cpu.read(resetVector + 1))
	cpu.PC = (high << 8) | low
	cpu.cycles += 2
}

// SetNMI reports the PPU's NMI line level; a high-to-low transition is
// not what the 6502 watches for — it's the rising edge the PPU asserts
// at VBL start that latches a pending NMI, serviced at the next
// instruction boundary.
func (cpu *CPU) SetNMI(level bool) {
	if level && !cpu.nmiPrev {
		cpu.nmiPending = true
	}
	cpu.nmiPrev = level
}

// SetIRQ asserts or deasserts one IRQ source's line. IRQ is
// level-sensitive and masked by the I flag; the CPU sees IRQ asserted
// whenever any source's bit is set (IRQFrame | IRQDMC | IRQMapper).
func (cpu *CPU) SetIRQ(source uint8, level bool) {
	if level {
		cpu.irqLines |= source
	} else {
		cpu.irqLines &^= source
	}
}

// Step executes one instruction (servicing any pending interrupt
// first) and returns the number of CPU cycles it took. Some
// addressing modes and single-register opcodes (Implied/Accumulator,
// the cycles "free" after a non-taken branch, etc.) structurally issue
// fewer real bus accesses than the instruction's table cycle cost; the
// padding loop below tops those up with dummy reads at the
// already-advanced PC so the bus still sees exactly as many
// read_cycle/write_cycle calls — and so ticks the PPU/cart/APU exactly
// as many times — as the instruction is supposed to take.
func (cpu *CPU) Step() uint64 {
	if cpu.nmiPending {
		cpu.nmiPending = false
		return cpu.serviceInterrupt(nmiVector, false)
	}
	if cpu.irqLines != 0 && !cpu.I {
		return cpu.serviceInterrupt(irqVector, false)
	}

	cpu.issued = 0
	opcode := cpu.read(cpu.PC)
	ins := cpu.instructions[opcode]

	addr, pageCrossed := cpu.operandAddress(ins.mode)
	extra := cpu.execute(opcode, addr, pageCrossed, ins)

	if pageCrossed && readPenalty[opcode] {
		extra++
	}

	total := uint64(ins.cycles) + uint64(extra)
	for uint64(cpu.issued) < total {
		cpu.read(cpu.PC)
	}

	cpu.cycles += total
	return total
}

// readPenalty marks opcodes that take an extra cycle when an indexed
// addressing mode crosses a page boundary on a read (store instructions
// and RMW instructions always take the worst-case cycle count already
// baked into their table entry).
var readPenalty = func() [256]bool {
	var t [256]bool
	for _, op := range []uint8{
		0xBD, 0xB9, 0xB1, 0xBE, 0xBC, 0x7D, 0x79, 0x71, 0x3D, 0x39, 0x31,
		0x1D, 0x19, 0x11, 0x5D, 0x59, 0x51, 0xDD, 0xD9, 0xD1,
		0x1C, 0x3C, 0x5C, 0x7C, 0xDC, 0xFC,
		0xBF, 0xB3,
	} {
		t[op] = true
	}
	return t
}()

func (cpu *CPU) serviceInterrupt(vector uint16, brk bool) uint64 {
	// Two internal cycles standing in for the opcode/operand fetch a
	// software BRK would have done, before the push sequence starts.
	cpu.read(cpu.PC)
	cpu.read(cpu.PC)

	cpu.pushWord(cpu.PC)
	status := cpu.statusByte() &^ bFlagMask
	status |= unusedMask
	if brk {
		status |= bFlagMask
	}
	cpu.push(status)
	cpu.I = true
	low := uint16(cpu.read(vector))
	high := uint16(cpu.read(vector + 1))
	cpu.PC = (high << 8) | low
	cpu.cycles += 7
	return 7
}

func (cpu *CPU) operandAddress(mode AddressingMode) (uint16, bool) {
	switch mode {
	case Implied, Accumulator:
		cpu.PC++
		return 0, false
	case Immediate:
		addr := cpu.PC + 1
		cpu.PC += 2
		return addr, false
	case ZeroPage:
		addr := uint16(cpu.read(cpu.PC + 1))
		cpu.PC += 2
		return addr, false
	case ZeroPageX:
		base := cpu.read(cpu.PC + 1)
		cpu.read(uint16(base))
		addr := uint16((base + cpu.X) & zeroPageMask)
		cpu.PC += 2
		return addr, false
	case ZeroPageY:
		base := cpu.read(cpu.PC + 1)
		cpu.read(uint16(base))
		addr := uint16((base + cpu.Y) & zeroPageMask)
		cpu.PC += 2
		return addr, false
	case Relative:
		offset := int8(cpu.read(cpu.PC + 1))
		oldPC := cpu.PC + 2
		newPC := uint16(int32(oldPC) + int32(offset))
		cpu.PC = oldPC
		return newPC, (oldPC & pageMask) != (newPC & pageMask)
	case Absolute:
		low := uint16(cpu.read(cpu.PC + 1))
		high := uint16(cpu.read(cpu.PC + 2))
		cpu.PC += 3
		return (high << 8) | low, false
	case AbsoluteX:
		low := uint16(cpu.read(cpu.PC + 1))
		high := uint16(cpu.read(cpu.PC + 2))
		base := (high << 8) | low
		addr := base + uint16(cpu.X)
		cpu.PC += 3
		return addr, (base & pageMask) != (addr & pageMask)
	case AbsoluteY:
		low := uint16(cpu.read(cpu.PC + 1))
		high := uint16(cpu.read(cpu.PC + 2))
		base := (high << 8) | low
		addr := base + uint16(cpu.Y)
		cpu.PC += 3
		return addr, (base & pageMask) != (addr & pageMask)
	case Indirect:
		lowPtr := uint16(cpu.read(cpu.PC + 1))
		highPtr := uint16(cpu.read(cpu.PC + 2))
		ptr := (highPtr << 8) | lowPtr
		var addr uint16
		if ptr&zeroPageMask == zeroPageMask {
			low := uint16(cpu.read(ptr))
			high := uint16(cpu.read(ptr & pageMask))
			addr = (high << 8) | low
		} else {
			low := uint16(cpu.read(ptr))
			high := uint16(cpu.read(ptr + 1))
			addr = (high << 8) | low
		}
		cpu.PC += 3
		return addr, false
	case IndexedIndirect:
		base := cpu.read(cpu.PC + 1)
		cpu.read(uint16(base))
		ptr := (base + cpu.X) & zeroPageMask
		low := uint16(cpu.read(uint16(ptr)))
		high := uint16(cpu.read(uint16((ptr + 1) & zeroPageMask)))
		cpu.PC += 2
		return (high << 8) | low, false
	case IndirectIndexed:
		ptr := uint16(cpu.read(cpu.PC + 1))
		low := uint16(cpu.read(ptr))
		high := uint16(cpu.read((ptr + 1) & zeroPageMask))
		base := (high << 8) | low
		addr := base + uint16(cpu.Y)
		cpu.PC += 2
		return addr, (base & pageMask) != (addr & pageMask)
	default:
		return 0, false
	}
}

func (cpu *CPU) push(v uint8) {
	cpu.write(stackBase+uint16(cpu.SP), v)
	cpu.SP--
}

func (cpu *CPU) pop() uint8 {
	cpu.SP++
	return cpu.read(stackBase + uint16(cpu.SP))
}

func (cpu *CPU) pushWord(v uint16) {
	cpu.push(uint8(v >> 8))
	cpu.push(uint8(v))
}

func (cpu *CPU) popWord() uint16 {
	low := uint16(cpu.pop())
	high := uint16(cpu.pop())
	return (high << 8) | low
}

func (cpu *CPU) setZN(v uint8) {
	cpu.Z = v == 0
	cpu.N = v&nFlagMask != 0
}

func (cpu *CPU) statusByte() uint8 {
	var s uint8
	if cpu.N {
		s |= nFlagMask
	}
	if cpu.V {
		s |= vFlagMask
	}
	s |= unusedMask
	if cpu.B {
		s |= bFlagMask
	}
	if cpu.D {
		s |= dFlagMask
	}
	if cpu.I {
		s |= iFlagMask
	}
	if cpu.Z {
		s |= zFlagMask
	}
	if cpu.C {
		s |= cFlagMask
	}
	return s
}

func (cpu *CPU) setStatusByte(s uint8) {
	cpu.N = s&nFlagMask != 0
	cpu.V = s&vFlagMask != 0
	cpu.B = s&bFlagMask != 0
	cpu.D = s&dFlagMask != 0
	cpu.I = s&iFlagMask != 0
	cpu.Z = s&zFlagMask != 0
	cpu.C = s&cFlagMask != 0
}

// readRMW performs the classic 6502 read-modify-write bus pattern: the
// unmodified value is written back before the modified one (visible to
// mappers that react to writes, e.g. MMC5's write-hook capture).
func (cpu *CPU) readRMW(addr uint16) uint8 {
	v := cpu.read(addr)
	cpu.write(addr, v)
	return v
}

// State is the save-state shape for the CPU.
type State struct {
	A, X, Y, SP                uint8
	PC                         uint16
	C, Z, I, D, B, V, N        bool
	NMIPrev, NMIPending        bool
	IRQLines                   uint8
	Cycles                     uint64
}

func (cpu *CPU) GetState() State {
	return State{
		A: cpu.A, X: cpu.X, Y: cpu.Y, SP: cpu.SP, PC: cpu.PC,
		C: cpu.C, Z: cpu.Z, I: cpu.I, D: cpu.D, B: cpu.B, V: cpu.V, N: cpu.N,
		NMIPrev: cpu.nmiPrev, NMIPending: cpu.nmiPending, IRQLines: cpu.irqLines,
		Cycles: cpu.cycles,
	}
}

func (cpu *CPU) SetState(s State) {
	cpu.A, cpu.X, cpu.Y, cpu.SP, cpu.PC = s.A, s.X, s.Y, s.SP, s.PC
	cpu.C, cpu.Z, cpu.I, cpu.D, cpu.B, cpu.V, cpu.N = s.C, s.Z, s.I, s.D, s.B, s.V, s.N
	cpu.nmiPrev, cpu.nmiPending, cpu.irqLines = s.NMIPrev, s.NMIPending, s.IRQLines
	cpu.cycles = s.Cycles
}

// Cycles returns the CPU's total lifetime cycle count (used by the bus
// for OAM DMA's odd/even alignment check).
func (cpu *CPU) Cycles() uint64 { return cpu.cycles }

// PCForTrace exposes PC read-only for debugging/tracing front ends.
func (cpu *CPU) PCForTrace() uint16 { return cpu.PC }
