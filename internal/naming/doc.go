// Package naming 定义内容文件与版本标记文件之间的命名映射（version naming strategy）。
//
// 每个缓存条目由两部分组成：
//  1. 内容文件 <StoragePath>/<subPath>；
//  2. 同目录下的版本标记文件，文件名由 Strategy 根据内容文件名推导。
//
// 策略可以直接以函数值注入，也可以通过 Register 注册为具名策略后由配置选择。
package naming
