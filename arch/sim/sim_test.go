package sim

import (
	"encoding/binary"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
	"github.com/vektra/neko"

	"github.com/JackSuuu/JasOS-Kernel/arch"
)

func entry() {}

func TestSim(t *testing.T) {
	n := neko.Modern(t)

	n.It("places the entry point where the restore picks it up", func(t *testing.T) {
		s := New()

		ctx := &arch.Context{Name: "t", Stack: make([]byte, 256), Entry: entry}
		require.NoError(t, s.Prepare(ctx))

		st := ctx.Data.(*state)
		require.EqualValues(t, 256-FrameSize, st.sp)
		require.Zero(t, st.sp%8)

		lr := binary.LittleEndian.Uint64(ctx.Stack[st.sp+LR*WordSize:])
		require.Equal(t, uint64(arch.EntryAddress(entry)), lr)

		for r := R4; r < LR; r++ {
			require.Zero(t, binary.LittleEndian.Uint64(ctx.Stack[st.sp+uint32(r)*WordSize:]))
		}
	})

	n.It("rejects contexts it can't prepare", func(t *testing.T) {
		s := New()

		err := s.Prepare(&arch.Context{Stack: make([]byte, 256)})
		require.Equal(t, ErrNoEntry, err)

		err = s.Prepare(&arch.Context{Stack: make([]byte, 32), Entry: entry})
		require.Equal(t, ErrStackTooSmall, errors.Cause(err))
	})

	n.It("switches between the boot context and a task", func(t *testing.T) {
		s := New()

		boot := &arch.Context{Name: "boot"}
		s.Boot(boot)
		s.SetReg(R11, 0x11)

		task := &arch.Context{Name: "task", Stack: make([]byte, 512), Entry: entry}
		require.NoError(t, s.Prepare(task))

		s.Switch(boot, task)
		require.Same(t, task, s.Current())
		require.Equal(t, uint64(arch.EntryAddress(entry)), s.CPU().PC)
		require.EqualValues(t, 512, s.CPU().SP)
		require.Zero(t, s.CPU().Regs[R11])

		s.SetReg(R5, 0x55)
		s.Switch(task, boot)
		require.Same(t, boot, s.Current())
		require.EqualValues(t, 0x11, s.CPU().Regs[R11])
		require.EqualValues(t, 512-FrameSize, task.Data.(*state).sp)

		s.Switch(boot, task)
		require.EqualValues(t, 0x55, s.CPU().Regs[R5])
		require.EqualValues(t, 3, s.Switches())
	})

	n.It("does not save into a released context", func(t *testing.T) {
		s := New()

		boot := &arch.Context{Name: "boot"}
		s.Boot(boot)

		task := &arch.Context{Name: "task", Stack: make([]byte, 512), Entry: entry}
		require.NoError(t, s.Prepare(task))

		s.Switch(boot, task)

		s.Release(task)
		for i := range task.Stack {
			task.Stack[i] = 0xee
		}

		s.Switch(task, boot)

		for _, b := range task.Stack {
			require.EqualValues(t, 0xee, b)
		}
	})

	n.Meow()
}
