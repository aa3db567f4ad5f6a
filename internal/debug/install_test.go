package debug

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FlintVN/FlintDebug/internal/wire"
)

type progressRecord struct {
	offset, total uint32
}

func TestInstallFileChunking(t *testing.T) {
	session, mt, agent, _ := newTestSession(t)
	agent.ok(wire.CmdInstallFile, nil)
	agent.ok(wire.CmdWriteFileData, nil)
	agent.ok(wire.CmdCompleteInstall, nil)

	data := bytes.Repeat([]byte{0xAB}, 1025)
	var progress []progressRecord
	err := session.InstallFile("Main.class", data, func(offset, total uint32) {
		progress = append(progress, progressRecord{offset, total})
	})
	require.NoError(t, err)

	require.Equal(t, []wire.Command{
		wire.CmdInstallFile,
		wire.CmdWriteFileData,
		wire.CmdWriteFileData,
		wire.CmdWriteFileData,
		wire.CmdCompleteInstall,
	}, mt.sentCommands())

	name, _, err := wire.ParseWireString(mt.sentPayload(0))
	require.NoError(t, err)
	assert.Equal(t, "Main.class", name)

	assert.Len(t, mt.sentPayload(1), 512)
	assert.Len(t, mt.sentPayload(2), 512)
	assert.Len(t, mt.sentPayload(3), 1)

	assert.Equal(t, []progressRecord{
		{512, 1025},
		{1024, 1025},
		{1025, 1025},
		{1025, 1025},
	}, progress)
}

func TestInstallFileEmpty(t *testing.T) {
	session, mt, agent, _ := newTestSession(t)
	agent.ok(wire.CmdInstallFile, nil)
	agent.ok(wire.CmdCompleteInstall, nil)

	var progress []progressRecord
	err := session.InstallFile("empty.bin", nil, func(offset, total uint32) {
		progress = append(progress, progressRecord{offset, total})
	})
	require.NoError(t, err)

	assert.Equal(t, []wire.Command{
		wire.CmdInstallFile,
		wire.CmdCompleteInstall,
	}, mt.sentCommands())
	assert.Equal(t, []progressRecord{{0, 0}}, progress)
}

func TestInstallFileChunkFailureAborts(t *testing.T) {
	session, mt, agent, _ := newTestSession(t)
	agent.ok(wire.CmdInstallFile, nil)
	agent.fail(wire.CmdWriteFileData)

	err := session.InstallFile("Main.class", make([]byte, 600), nil)
	require.ErrorIs(t, err, ErrCommandFailed)

	for _, cmd := range mt.sentCommands() {
		assert.NotEqual(t, wire.CmdCompleteInstall, cmd, "install must abort before completion")
	}
}

func TestInstallFileBeginFailureAborts(t *testing.T) {
	session, mt, agent, _ := newTestSession(t)
	agent.fail(wire.CmdInstallFile)

	err := session.InstallFile("Main.class", []byte{1}, nil)
	require.Error(t, err)
	assert.Equal(t, 1, mt.writeCount())
}
