package multipath

import "fmt"

// PathStateは、パスの状態です。
type PathState uint8

const (
	PathStateInit PathState = iota
	// ソケットの接続が完了し、ハンドシェイクを送信する前の状態
	PathStateReady
	// 受け付けたソケットからハンドシェイクを待っている状態
	PathStateListening
	PathStateBuildSent
	PathStateBuildReceived
	PathStateJoinSent
	PathStateJoinReceived
	PathStateConnected
	PathStateClosed
	PathStateError
)

func (s PathState) String() string {
	switch s {
	case PathStateInit:
		return "Init"
	case PathStateReady:
		return "Ready"
	case PathStateListening:
		return "Listening"
	case PathStateBuildSent:
		return "BuildSent"
	case PathStateBuildReceived:
		return "BuildReceived"
	case PathStateJoinSent:
		return "JoinSent"
	case PathStateJoinReceived:
		return "JoinReceived"
	case PathStateConnected:
		return "Connected"
	case PathStateClosed:
		return "Closed"
	case PathStateError:
		return "Error"
	default:
		return fmt.Sprintf("PathState(%d)", uint8(s))
	}
}

// IsTerminalは、ClosedまたはErrorであるかどうかを返却します。
func (s PathState) IsTerminal() bool {
	return s == PathStateClosed || s == PathStateError
}

func (s PathState) isHandshaking() bool {
	switch s {
	case PathStateInit, PathStateReady, PathStateListening,
		PathStateBuildSent, PathStateBuildReceived, PathStateJoinSent, PathStateJoinReceived:
		return true
	}
	return false
}

// ConnStateは、マルチパスコネクションの状態です。
type ConnState uint8

const (
	ConnStateInit ConnState = iota
	// 接続先とキーが決まり、最初のパスを開く前の状態
	ConnStateBind
	ConnStateConnecting
	// 送受信できる状態
	ConnStateSending
	ConnStateClosing
	ConnStateClosed
)

func (s ConnState) String() string {
	switch s {
	case ConnStateInit:
		return "Init"
	case ConnStateBind:
		return "Bind"
	case ConnStateConnecting:
		return "Connecting"
	case ConnStateSending:
		return "Sending"
	case ConnStateClosing:
		return "Closing"
	case ConnStateClosed:
		return "Closed"
	default:
		return fmt.Sprintf("ConnState(%d)", uint8(s))
	}
}
