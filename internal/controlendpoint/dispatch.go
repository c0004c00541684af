package controlendpoint

import "github.com/drgolem/soundd/internal/ipc"

// dispatch applies the command dispatch table to one decoded frame from
// rec, replying on the same connection and broadcasting as needed.
func (e *Endpoint) dispatch(fd int, rec *connection, msg *ipc.Message) {
	switch msg.Type {
	case ipc.TypePlay:
		e.broadcast(e.handler.Play())

	case ipc.TypeTogglePlay:
		e.broadcast(e.handler.TogglePlay())

	case ipc.TypePause:
		e.broadcast(e.handler.Pause())

	case ipc.TypeStop:
		e.broadcast(e.handler.Stop())

	case ipc.TypeNext:
		e.broadcast(e.handler.Next())

	case ipc.TypePrev:
		e.broadcast(e.handler.Prev())

	case ipc.TypeJump:
		target, err := decodeJump(msg.Payload)
		if err != nil {
			e.replyError(rec, err.Error())
			return
		}
		n, err := e.handler.Jump(target)
		if err != nil {
			e.replyError(rec, err.Error())
			return
		}
		e.broadcast(n)

	case ipc.TypeSeek:
		req, err := decodeSeek(msg.Payload)
		if err != nil {
			e.replyError(rec, err.Error())
			return
		}
		pos, err := e.handler.Seek(req)
		if err != nil {
			e.replyError(rec, err.Error())
			return
		}
		e.reply(rec, ipc.TypeSeekReply, encodePositionReply(pos))

	case ipc.TypeMode:
		req, err := decodeMode(msg.Payload)
		if err != nil {
			e.replyError(rec, err.Error())
			return
		}
		e.broadcast(e.handler.Mode(req))

	case ipc.TypeFlush:
		e.broadcast(e.handler.Flush())

	case ipc.TypeShow:
		for _, path := range e.handler.Show() {
			e.reply(rec, ipc.TypePlaylistEntry, encodePlaylistEntry(path))
		}
		e.reply(rec, ipc.TypePlaylistEntry, nil) // empty frame terminates the stream

	case ipc.TypeStatus:
		e.reply(rec, ipc.TypeStatusReply, encodeStatus(e.handler.Status()))

	case ipc.TypeMonitor:
		rec.monitor = true

	case ipc.TypeBegin:
		if err := e.handler.Begin(fd); err != nil {
			e.replyError(rec, err.Error())
			return
		}
		e.reply(rec, ipc.TypeBeginAck, nil)

	case ipc.TypeAdd:
		path, err := decodeAdd(msg.Payload)
		if err != nil {
			e.replyError(rec, err.Error())
			return
		}
		n, err := e.handler.Add(fd, path)
		if err != nil {
			e.replyError(rec, err.Error())
			return
		}
		if n != nil {
			e.broadcast(*n)
		}

	case ipc.TypeCommit:
		offset, err := decodeCommit(msg.Payload)
		if err != nil {
			e.replyError(rec, err.Error())
			return
		}
		n, err := e.handler.Commit(fd, offset)
		if err != nil {
			e.replyError(rec, err.Error())
			return
		}
		e.reply(rec, ipc.TypeCommitAck, nil)
		e.broadcast(n)

	default:
		e.replyError(rec, "unknown command")
	}

	e.flushConnection(fd, rec)
}
