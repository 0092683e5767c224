/*
Package transport は、マルチパスコネクションのパスとして使用するバイトストリームのソケットをまとめたパッケージです。

実装は tcp、quic、websocket の各サブパッケージにあります。
テストでは MemoryNetwork で複数のインターフェースを持つノードをプロセス内に再現できます。
*/
package transport
