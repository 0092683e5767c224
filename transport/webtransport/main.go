/*
Package webtransport は、WebTransportのセッション上の1本の双方向ストリームをパスのソケットとして使用するためのパッケージです。

1つのパスにつき1つのセッションを開きます。DATAGRAMは使用しません。
*/
package webtransport
