// Copyright (c) 2021 PaddlePaddle Authors. All Rights Reserved.
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package errcodes

// error code list
const (
	// 00xx common error
	ErrCodeInternal = "HF0001" // internal error
	ErrCodeParam    = "HF0002" // parameters error
	ErrCodeConfig   = "HF0003" // configuration error
	ErrCodeNotFound = "HF0004" // target not found
	ErrCodeEncoding = "HF0005" // encoding error

	// transfer errors
	ErrCodeRecvTimeout   = "HF0011" // no message arrived with the expected name and tag before timeout
	ErrCodeChannelClosed = "HF0012" // channel closed while sending or receiving
	ErrCodeNoSuchParty   = "HF0013" // destination role or instance is not registered
	ErrCodeConnect       = "HF0014" // failed to connect to the message broker

	// protocol errors
	ErrCodeEncryptMethod = "HF0021" // unsupported encryption method
	ErrCodeFTLScheme     = "HF0022" // unsupported ftl protocol variant
	ErrCodeLabelCheck    = "HF0023" // label validation failed
	ErrCodeMask          = "HF0024" // mask generation or removal failed
	ErrCodeEncrypt       = "HF0025" // encryption or decryption failed
)
