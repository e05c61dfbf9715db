// Package rag 提供线程消息的语义检索。
//
// Index 把每条已提交的非分隔消息向量化后按线程位置保存，
// QueryBefore 只在给定位置之前的消息中做余弦相似度检索，
// 供上下文构建器补充历史窗口之外的相关片段。
package rag
