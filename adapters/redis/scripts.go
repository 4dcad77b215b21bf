package redis

import "github.com/redis/go-redis/v9"

// createDocScript 用於建立拍賣會文件
//
//	KEYS[1] - 文件鍵
//	KEYS[2] - 快照 stream
//	ARGV[1] - 序列化後的文件
//	ARGV[2] - 初始版本號
//	ARGV[3] - stream 長度上限
//
// 返回值:
//
//	1 - 建立成功
//	0 - 文件已存在
var createDocScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 1 then
    return 0
end

redis.call('HSET', KEYS[1], 'doc', ARGV[1], 'ver', ARGV[2])
redis.call('XADD', KEYS[2], 'MAXLEN', '~', ARGV[3], '*', 'payload', ARGV[1])

return 1
`)

// commitDocScript 用於條件提交拍賣會文件
//
//	KEYS[1] - 文件鍵
//	KEYS[2] - 快照 stream
//	ARGV[1] - 預期的當前版本號
//	ARGV[2] - 序列化後的新文件
//	ARGV[3] - 新版本號
//	ARGV[4] - stream 長度上限
//
// 返回值:
//
//	1  - 提交成功
//	0  - 版本不符，提交被拒絕
//	-1 - 文件不存在
//
// 流程:
//   - 1. 檢查文件是否存在
//   - 2a. 如果不存在，返回-1
//   - 2b. 如果存在，比對當前版本號與預期版本號
//   - 3a. 版本不符，返回0
//   - 3b. 版本相符，寫入新文件與新版本號
//   - 4. 將新快照寫入stream供訂閱端廣播
//   - 5. 返回1
var commitDocScript = redis.NewScript(`
-- 檢查文件是否存在
local ver = redis.call('HGET', KEYS[1], 'ver')
if not ver then
    return -1
end

-- 比對版本號
if tonumber(ver) ~= tonumber(ARGV[1]) then
    return 0
end

-- 寫入新文件
redis.call('HSET', KEYS[1], 'doc', ARGV[2], 'ver', ARGV[3])

-- 將快照寫入 stream
redis.call('XADD', KEYS[2], 'MAXLEN', '~', ARGV[4], '*', 'payload', ARGV[2])

return 1
`)
