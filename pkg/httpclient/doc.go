// Package httpclient は上流サービスとのHTTP通信を行うクライアントを提供する。
//
// consoleからexecution、brain、ingestionの各サービスやPolymarket APIを
// 呼び出す際に使用する。JSONボディのシリアライズ、Content-Typeの付与、
// ユーザーIDの伝播といった通信パターンを統一する。
package httpclient
