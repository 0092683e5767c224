/*
Package websocket は、WebSocketのコネクションをパスのソケットとして使用するためのパッケージです。

WebSocketのバイナリメッセージをバイトストリームとして扱います。
WebSocketライブラリの実装は gorilla または coder サブパッケージから選択します。
*/
package websocket
