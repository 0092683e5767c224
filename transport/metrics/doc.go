// Package metrics は、パスのソケットからRTTなどのメトリクスを取得するためのパッケージです。
//
// # Implementations
//
// TCPInfoProvider (Linux only):
//   - TCP_INFO syscall でカーネルから SRTT, RTTVAR, 輻輳ウィンドウを取得します
//   - 値は呼び出しの度に取得し、取得に失敗した場合は直前の値を返します
//
// それ以外の環境やTCP以外のソケットでは NewNopMetricsProvider を使用します。
package metrics
