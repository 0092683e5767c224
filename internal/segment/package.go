// Package segment は、送信するバイト列をデータセグメントへ分割し、受信したセグメントをシーケンス番号順に再構成するパッケージです。
package segment
